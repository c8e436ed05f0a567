package output

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// WriteConfigYAML writes v as an indented YAML document.
func WriteConfigYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
