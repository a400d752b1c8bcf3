package output

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatRules renders rules as a JSON array.
func (f *JSONFormatter) FormatRules(rules []RuleRow) (string, error) {
	return f.marshal(nonNil(rules))
}

// FormatStats renders counters as a JSON array.
func (f *JSONFormatter) FormatStats(stats []StatsRow) (string, error) {
	return f.marshal(nonNil(stats))
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// YAMLFormatter renders results as YAML.
type YAMLFormatter struct{}

// FormatRules renders rules as a YAML sequence.
func (f *YAMLFormatter) FormatRules(rules []RuleRow) (string, error) {
	return marshalYAML(nonNil(rules))
}

// FormatStats renders counters as a YAML sequence.
func (f *YAMLFormatter) FormatStats(stats []StatsRow) (string, error) {
	return marshalYAML(nonNil(stats))
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
