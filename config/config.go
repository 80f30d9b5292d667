package config

import _ "embed"

// EmbeddedConfigFile is the contract registry shipped with the binary.
//
//go:embed contracts.yaml
var EmbeddedConfigFile []byte
