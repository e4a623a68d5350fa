package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Guliveer/eaton-ups-exporter/internal/models"
)

// assemble walks the resource links from the power distribution overview
// down to the power bank. Every step depends on the body of the previous one,
// so the requests run strictly in order. Any failure aborts the whole walk.
func (c *Client) assemble(ctx context.Context) (*models.Snapshot, error) {
	var overview models.PowerDistribution
	if err := c.fetch(ctx, powerDistributionPath, &overview); err != nil {
		return nil, err
	}

	if c.upsID == "" {
		if overview.ID == "" {
			return nil, NewError(CodeJSONDecode, "power distribution has no id")
		}
		c.upsID = "ups_" + string(overview.ID)
	}

	if err := requireLinks(map[string]models.Link{
		"inputs":       overview.Inputs,
		"outputs":      overview.Outputs,
		"backupSystem": overview.BackupSystem,
	}); err != nil {
		return nil, err
	}

	var inputs models.Input
	if err := c.fetch(ctx, fmt.Sprintf("%s/%d", overview.Inputs.Ref, inputMemberID), &inputs, inputFields...); err != nil {
		return nil, err
	}

	var outputs models.Output
	if err := c.fetch(ctx, fmt.Sprintf("%s/%d", overview.Outputs.Ref, outputMemberID), &outputs, outputFields...); err != nil {
		return nil, err
	}

	var backup models.BackupSystem
	if err := c.fetch(ctx, overview.BackupSystem.Ref, &backup); err != nil {
		return nil, err
	}
	if err := requireLinks(map[string]models.Link{"powerBank": backup.PowerBank}); err != nil {
		return nil, err
	}

	var powerBank models.PowerBank
	if err := c.fetch(ctx, backup.PowerBank.Ref, &powerBank, powerBankFields...); err != nil {
		return nil, err
	}

	return &models.Snapshot{
		UPSID:     c.upsID,
		Inputs:    inputs,
		Outputs:   outputs,
		PowerBank: powerBank,
	}, nil
}

// fetch loads path relative to the device address and decodes the JSON body
// into v. Every dotted field path in required must be present in the body.
func (c *Client) fetch(ctx context.Context, path string, v any, required ...string) error {
	pageURL, err := c.resolve(path)
	if err != nil {
		return err
	}
	body, err := c.loadPage(ctx, pageURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return WrapError(CodeJSONDecode, fmt.Sprintf("decoding %s", path), err)
	}
	for _, field := range required {
		if !hasField(body, field) {
			return NewError(CodeJSONDecode, fmt.Sprintf("decoding %s: field %q is missing", path, field))
		}
	}
	return nil
}

// hasField reports whether the JSON object body holds a non-null value at
// the dotted path.
func hasField(body []byte, path string) bool {
	raw := json.RawMessage(body)
	for _, key := range strings.Split(path, ".") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return false
		}
		next, ok := obj[key]
		if !ok {
			return false
		}
		raw = next
	}
	return string(raw) != "null"
}

// Fields a resource must carry for its measurements to be exported.
var (
	inputFields = []string{
		"measures.realtime.voltage",
		"measures.realtime.frequency",
		"measures.realtime.current",
		"status.health",
	}
	outputFields = []string{
		"measures.realtime.voltage",
		"measures.realtime.frequency",
		"measures.realtime.current",
		"measures.realtime.activePower",
		"measures.realtime.apparentPower",
		"measures.realtime.powerFactor",
		"measures.realtime.percentLoad",
		"status.health",
	}
	powerBankFields = []string{
		"measures.voltage",
		"measures.remainingChargeCapacity",
		"measures.remainingTime",
		"status.health",
	}
)

func requireLinks(links map[string]models.Link) error {
	for name, link := range links {
		if link.Ref == "" {
			return NewError(CodeJSONDecode, fmt.Sprintf("resource link %q is missing", name))
		}
	}
	return nil
}
