package environment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// DefaultTLSOverrideVariable disables certificate verification for Node.js clients.
	DefaultTLSOverrideVariable = "NODE_TLS_REJECT_UNAUTHORIZED"

	tlsVerificationDisabledValueConstant = "0"
	environmentFileReadErrorTemplate     = "unable to read environment file %s: %w"
	invalidVariableNameTemplateConstant  = "%w %q"
	environmentAssignmentSeparator       = "="
)

// ErrInvalidVariableName indicates an override whose name cannot be exported to a child process.
var ErrInvalidVariableName = errors.New("invalid environment variable name")

// Settings describes how per-unit overrides are assembled.
type Settings struct {
	EnvironmentFile     string
	RelaxTLS            bool
	TLSOverrideVariable string
}

// Overrides is a set of variables added to a child process environment.
type Overrides map[string]string

// LoadFile reads dotenv assignments from the provided path. An empty path yields no overrides.
func LoadFile(environmentFilePath string) (Overrides, error) {
	trimmedPath := strings.TrimSpace(environmentFilePath)
	if len(trimmedPath) == 0 {
		return Overrides{}, nil
	}

	values, readError := godotenv.Read(trimmedPath)
	if readError != nil {
		return nil, fmt.Errorf(environmentFileReadErrorTemplate, trimmedPath, readError)
	}
	return Overrides(values), nil
}

// TLSOverride returns the assignment that relaxes certificate verification, or no overrides
// when relaxation is disabled.
func TLSOverride(relaxTLS bool, variableName string) (Overrides, error) {
	if !relaxTLS {
		return Overrides{}, nil
	}

	trimmedName := strings.TrimSpace(variableName)
	if len(trimmedName) == 0 {
		trimmedName = DefaultTLSOverrideVariable
	}
	if strings.Contains(trimmedName, environmentAssignmentSeparator) || strings.ContainsAny(trimmedName, " \t\n") {
		return nil, fmt.Errorf(invalidVariableNameTemplateConstant, ErrInvalidVariableName, trimmedName)
	}
	return Overrides{trimmedName: tlsVerificationDisabledValueConstant}, nil
}

// Build combines the dotenv file with the TLS override. The TLS override wins on conflict.
func Build(settings Settings) (Overrides, error) {
	fileOverrides, fileError := LoadFile(settings.EnvironmentFile)
	if fileError != nil {
		return nil, fileError
	}

	tlsOverrides, tlsError := TLSOverride(settings.RelaxTLS, settings.TLSOverrideVariable)
	if tlsError != nil {
		return nil, tlsError
	}

	return Merge(fileOverrides, tlsOverrides), nil
}

// Merge returns a new set combining the layers in order; later layers win.
func Merge(layers ...Overrides) Overrides {
	merged := Overrides{}
	for _, layer := range layers {
		for name, value := range layer {
			merged[name] = value
		}
	}
	return merged
}
