package cli

import (
	"bytes"
	_ "embed"
)

// defaultConfigurationDocument lists every configuration key so PROPSYNC_* environment
// variables can override keys that no configuration file mentions.
//
//go:embed default_config.yaml
var defaultConfigurationDocument []byte

// EmbeddedDefaultConfiguration returns a copy of the embedded defaults and their format.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return bytes.Clone(defaultConfigurationDocument), configurationTypeConstant
}
