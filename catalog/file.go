package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk YAML shape of a catalog definition:
//
//	languages:
//	  - id: python
//	    display_name: Python
//	engines:
//	  - id: atheris
//	    display_name: Atheris
//	    langs: [python]
//	images:
//	  - id: ubuntu-20.04
//	    name: Ubuntu 20.04 LTS
//	    status: Ready
//	    engines: [atheris]
type fileSchema struct {
	Languages []Language `yaml:"languages"`
	Engines   []Engine   `yaml:"engines"`
	Images    []Image    `yaml:"images"`
}

// LoadFile reads a catalog definition from a YAML file and validates it
// with the same closure check as New. Entry order in the file becomes
// catalog insertion order.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return loadYAML(data)
}

func loadYAML(data []byte) (*Catalog, error) {
	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	return New(schema.Languages, schema.Engines, schema.Images)
}
