package main

import _ "embed"

// embeddedConfig holds the YAML configuration embedded at build time.
// Packagers may overwrite exporter.yaml with site defaults before compiling;
// an external config file and flags still take precedence.
//
//go:embed exporter.yaml
var embeddedConfig []byte
