package configs

import _ "embed"

// DefaultConfig is the documented default config file written by
// `ptyhub config init`.
//
//go:embed config.yaml
var DefaultConfig []byte
