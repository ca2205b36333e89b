package output

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// JSONFormatter writes data as JSON indented by two spaces. A *Table is
// written as its records.
type JSONFormatter struct{}

func (*JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records(data))
}

// YAMLFormatter writes data as YAML. A *Table is written as its records.
type YAMLFormatter struct{}

func (*YAMLFormatter) Format(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records(data)); err != nil {
		return err
	}
	return enc.Close()
}

func records(data any) any {
	switch t := data.(type) {
	case *Table:
		return t.Records()
	case Table:
		return t.Records()
	}
	return data
}
