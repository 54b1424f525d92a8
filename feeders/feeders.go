// Package feeders provides configuration feeders for reading data from
// YAML, TOML and JSON files and from environment variables, plus a file
// watcher used to reload them.
package feeders

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Feeder populates a struct from a configuration source.
type Feeder interface {
	Feed(target any) error
}

// KeyFeeder can additionally populate a struct from one top-level section.
type KeyFeeder interface {
	Feeder
	FeedKey(key string, target any) error
}

type decodeFunc func(data []byte) (map[string]any, error)

func feedFile(path, tag string, decode decodeFunc, target any) error {
	doc, err := readDocument(path, decode)
	if err != nil {
		return err
	}
	return populate(target, doc, tag)
}

func feedFileKey(path, tag string, decode decodeFunc, key string, target any) error {
	doc, err := readDocument(path, decode)
	if err != nil {
		return err
	}
	value, ok := lookup(doc, key)
	if !ok || value == nil {
		return nil
	}
	section, ok := asMap(value)
	if !ok {
		return wrapMapError(key, value)
	}
	return populate(target, section, tag)
}

func readDocument(path string, decode decodeFunc) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// YamlFeeder reads YAML files
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

func (y YamlFeeder) Feed(target any) error {
	return feedFile(y.Path, "yaml", decodeYAML, target)
}

func (y YamlFeeder) FeedKey(key string, target any) error {
	return feedFileKey(y.Path, "yaml", decodeYAML, key, target)
}

func decodeYAML(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// TomlFeeder reads TOML files
type TomlFeeder struct {
	Path string
}

// NewTomlFeeder creates a new TomlFeeder that reads from the specified TOML file
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

func (t TomlFeeder) Feed(target any) error {
	return feedFile(t.Path, "toml", decodeTOML, target)
}

func (t TomlFeeder) FeedKey(key string, target any) error {
	return feedFileKey(t.Path, "toml", decodeTOML, key, target)
}

func decodeTOML(data []byte) (map[string]any, error) {
	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, err
	}
	return normalizeTOML(doc), nil
}

// normalizeTOML turns arrays of tables ([]map[string]any) into []any so they
// go through the same path as YAML and JSON sequences.
func normalizeTOML(doc map[string]any) map[string]any {
	for k, v := range doc {
		doc[k] = normalizeTOMLValue(v)
	}
	return doc
}

func normalizeTOMLValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeTOML(t)
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = normalizeTOML(m)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeTOMLValue(t[i])
		}
		return t
	default:
		return v
	}
}

// JSONFeeder reads JSON files
type JSONFeeder struct {
	Path string
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified JSON file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

func (j JSONFeeder) Feed(target any) error {
	return feedFile(j.Path, "json", decodeJSON, target)
}

func (j JSONFeeder) FeedKey(key string, target any) error {
	return feedFileKey(j.Path, "json", decodeJSON, key, target)
}

func decodeJSON(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ForFile picks the feeder matching the file extension.
func ForFile(path string) (KeyFeeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, filepath.Ext(path))
	}
}
