package plan

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const (
	manifestReadErrorTemplateConstant       = "unable to read migration manifest %s: %w"
	manifestParseErrorTemplateConstant      = "unable to parse migration manifest %s: %w"
	manifestValidationErrorTemplateConstant = "migration manifest %s is invalid: %s"
	manifestSchemaErrorTemplateConstant     = "unable to validate migration manifest %s: %w"
	unsupportedManifestFormatTemplate       = "%w: %s (expected .yaml, .yml, .toml, or .json)"
	manifestViolationSeparatorConstant      = "; "
	yamlExtensionConstant                   = ".yaml"
	ymlExtensionConstant                    = ".yml"
	tomlExtensionConstant                   = ".toml"
	jsonExtensionConstant                   = ".json"
)

//go:embed manifest.schema.json
var manifestSchemaDocument string

// ErrUnsupportedManifestFormat indicates a manifest path whose extension is not recognized.
var ErrUnsupportedManifestFormat = errors.New("unsupported migration manifest format")

// Manifest declares ordering inputs for a migration directory.
type Manifest struct {
	Priority     []string     `yaml:"priority" toml:"priority" json:"priority"`
	Dependencies Dependencies `yaml:"dependencies" toml:"dependencies" json:"dependencies"`
	RootScripts  []string     `yaml:"root_scripts" toml:"root_scripts" json:"root_scripts"`
}

type manifestDecoder func(contents []byte, target any) error

var manifestDecoders = map[string]manifestDecoder{
	yamlExtensionConstant: yaml.Unmarshal,
	ymlExtensionConstant:  yaml.Unmarshal,
	tomlExtensionConstant: toml.Unmarshal,
	jsonExtensionConstant: json.Unmarshal,
}

// LoadManifest reads, validates, and decodes the manifest at manifestPath. The format is
// selected by file extension.
func LoadManifest(manifestPath string) (Manifest, error) {
	decode, supported := manifestDecoders[strings.ToLower(filepath.Ext(manifestPath))]
	if !supported {
		return Manifest{}, fmt.Errorf(unsupportedManifestFormatTemplate, ErrUnsupportedManifestFormat, manifestPath)
	}

	contents, readError := os.ReadFile(manifestPath)
	if readError != nil {
		return Manifest{}, fmt.Errorf(manifestReadErrorTemplateConstant, manifestPath, readError)
	}

	var document map[string]any
	if decodeError := decode(contents, &document); decodeError != nil {
		return Manifest{}, fmt.Errorf(manifestParseErrorTemplateConstant, manifestPath, decodeError)
	}
	if document == nil {
		document = map[string]any{}
	}

	if validationError := validateManifestDocument(manifestPath, document); validationError != nil {
		return Manifest{}, validationError
	}

	var manifest Manifest
	if decodeError := decode(contents, &manifest); decodeError != nil {
		return Manifest{}, fmt.Errorf(manifestParseErrorTemplateConstant, manifestPath, decodeError)
	}
	return manifest, nil
}

func validateManifestDocument(manifestPath string, document map[string]any) error {
	result, validationError := gojsonschema.Validate(
		gojsonschema.NewStringLoader(manifestSchemaDocument),
		gojsonschema.NewGoLoader(document),
	)
	if validationError != nil {
		return fmt.Errorf(manifestSchemaErrorTemplateConstant, manifestPath, validationError)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		violations = append(violations, violation.String())
	}
	return fmt.Errorf(manifestValidationErrorTemplateConstant, manifestPath, strings.Join(violations, manifestViolationSeparatorConstant))
}

// EffectiveDependencies returns the manifest's dependency declarations combined with the chain
// implied by its priority list.
func (manifest Manifest) EffectiveDependencies() Dependencies {
	return FromPriorityList(manifest.Priority).Merge(manifest.Dependencies)
}
