// Package models defines the measurement structures read from the UPS REST API.
// Field names and JSON tags mirror the vendor's resource shapes so a snapshot
// can be re-serialized with the same nested keys it was read with.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Snapshot is one complete set of measurements for one UPS at one point in time.
// It is built once per scrape cycle and never mutated afterwards.
type Snapshot struct {
	UPSID     string    `json:"ups_id"`
	Inputs    Input     `json:"ups_inputs"`
	Outputs   Output    `json:"ups_outputs"`
	PowerBank PowerBank `json:"ups_powerbank"`
}

// Link is a hyperlink embedded in an API resource.
type Link struct {
	Ref string `json:"@id"`
}

// PowerDistribution is the overview resource that links to every other part
// of the device.
type PowerDistribution struct {
	Link
	ID           ResourceID `json:"id"`
	Inputs       Link       `json:"inputs"`
	Outputs      Link       `json:"outputs"`
	BackupSystem Link       `json:"backupSystem"`
}

// BackupSystem links to the battery subsystem.
type BackupSystem struct {
	Link
	PowerBank Link `json:"powerBank"`
}

// Input is one input phase member.
type Input struct {
	Link
	ID       ResourceID    `json:"id,omitempty"`
	Measures InputMeasures `json:"measures"`
	Status   Status        `json:"status"`
}

// InputMeasures wraps the realtime input readings.
type InputMeasures struct {
	Realtime InputRealtime `json:"realtime"`
}

// InputRealtime holds instantaneous input readings.
type InputRealtime struct {
	Frequency float64 `json:"frequency"`
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
}

// Output is one output phase member.
type Output struct {
	Link
	ID       ResourceID     `json:"id,omitempty"`
	Measures OutputMeasures `json:"measures"`
	Status   Status         `json:"status"`
}

// OutputMeasures wraps the realtime output readings.
type OutputMeasures struct {
	Realtime OutputRealtime `json:"realtime"`
}

// OutputRealtime holds instantaneous output readings.
type OutputRealtime struct {
	Frequency     float64 `json:"frequency"`
	Voltage       float64 `json:"voltage"`
	Current       float64 `json:"current"`
	ActivePower   float64 `json:"activePower"`
	ApparentPower float64 `json:"apparentPower"`
	PowerFactor   float64 `json:"powerFactor"`
	PercentLoad   float64 `json:"percentLoad"`
}

// PowerBank is the battery resource.
type PowerBank struct {
	Link
	Measures PowerBankMeasures `json:"measures"`
	Status   Status            `json:"status"`
}

// PowerBankMeasures holds battery readings. RemainingTime is in seconds,
// RemainingChargeCapacity in percent.
type PowerBankMeasures struct {
	Voltage                 float64 `json:"voltage"`
	RemainingChargeCapacity float64 `json:"remainingChargeCapacity"`
	RemainingTime           float64 `json:"remainingTime"`
}

// Status is the common status block of a resource.
type Status struct {
	Health Health `json:"health"`
}

// ResourceID is a resource identifier. It is reported as a number by some
// firmware versions and as a string by others.
type ResourceID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ResourceID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ResourceID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string, got %s", data)
	}
	*id = ResourceID(n.String())
	return nil
}

// Health is a resource health value. Firmware versions report it either as a
// number or as a string; the string "ok" maps to 0 and any other string to 1.
type Health float64

// UnmarshalJSON accepts a JSON number or string.
func (h *Health) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*h = Health(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("health must be a number or string, got %s", data)
	}
	if strings.EqualFold(s, "ok") {
		*h = 0
	} else {
		*h = 1
	}
	return nil
}
