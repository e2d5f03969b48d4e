package level

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"tactica.ai/internal/sim/simerr"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	levelSchemaURL = "https://tactica.ai/schemas/level.schema.json"
	mapSchemaURL   = "https://tactica.ai/schemas/map.schema.json"
)

var (
	schemasOnce sync.Once
	levelSchema *jsonschema.Schema
	mapSchema   *jsonschema.Schema
	schemasErr  error
)

func schemas() (*jsonschema.Schema, *jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for file, url := range map[string]string{
			"schemas/level.schema.json": levelSchemaURL,
			"schemas/map.schema.json":   mapSchemaURL,
		} {
			b, err := schemaFS.ReadFile(file)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", file, err)
				return
			}
		}
		if levelSchema, schemasErr = c.Compile(levelSchemaURL); schemasErr != nil {
			return
		}
		mapSchema, schemasErr = c.Compile(mapSchemaURL)
	})
	return levelSchema, mapSchema, schemasErr
}

// SchemaJSON returns the raw embedded schema for name ("level" or "map").
func SchemaJSON(name string) ([]byte, error) {
	return schemaFS.ReadFile("schemas/" + name + ".schema.json")
}

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension; anything but .yaml/.yml is JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

func LoadLevel(path string) (*Level, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lv, err := ParseLevel(raw, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return lv, nil
}

func LoadMap(path string) (*Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseMap(raw, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return m, nil
}

func ParseLevel(data []byte, format Format) (*Level, error) {
	ls, _, err := schemas()
	if err != nil {
		return nil, err
	}
	var lv Level
	if err := decode(data, format, ls, &lv); err != nil {
		return nil, err
	}
	return &lv, nil
}

func ParseMap(data []byte, format Format) (*Map, error) {
	_, ms, err := schemas()
	if err != nil {
		return nil, err
	}
	var m Map
	if err := decode(data, format, ms, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// decode normalizes YAML to JSON, validates the generic document against
// schema and then decodes strictly into out.
func decode(data []byte, format Format, schema *jsonschema.Schema, out any) error {
	if format == FormatYAML {
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return simerr.Wrap(simerr.CodeConfig, "parse yaml", err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return simerr.Wrap(simerr.CodeConfig, "yaml is not representable as json", err)
		}
		data = b
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return simerr.Wrap(simerr.CodeConfig, "parse json", err)
	}
	if err := schema.Validate(doc); err != nil {
		return simerr.Wrap(simerr.CodeConfig, "schema validation", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return simerr.Wrap(simerr.CodeConfig, "decode", err)
	}
	return nil
}
