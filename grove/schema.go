package grove

import (
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
)

// SchemaProvider answers what kind a property is declared to have. It is
// the external source of class metadata this package validates against;
// lookups must be pure, synchronous and side-effect free.
//
// Lookup returns the expected kind for class.prop and true, or false
// when the schema has no entry for the pair.
type SchemaProvider interface {
	Lookup(class, prop string) (Type, bool)
}

// MapSchema is an in-memory SchemaProvider: class name → property name →
// expected kind.
type MapSchema map[string]map[string]Type

// Lookup implements SchemaProvider.
func (m MapSchema) Lookup(class, prop string) (Type, bool) {
	props, ok := m[class]
	if !ok {
		return TypeInvalid, false
	}
	t, ok := props[prop]
	return t, ok
}

// Add declares a property, creating the class entry as needed, and
// returns the schema for chaining.
func (m MapSchema) Add(class, prop string, t Type) MapSchema {
	props, ok := m[class]
	if !ok {
		props = make(map[string]Type)
		m[class] = props
	}
	props[prop] = t
	return m
}

// LoadSchemaYAML reads a schema in the shape
//
//	Workspace:
//	  FilteringEnabled: Bool
//	Lighting:
//	  Ambient: Color3
//
// where each leaf is a type name as reported by Type.String. Unknown
// type names fail the load.
func LoadSchemaYAML(r io.Reader) (MapSchema, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	schema := make(MapSchema, len(raw))
	for class, props := range raw {
		for prop, typeName := range props {
			t, ok := TypeFromName(typeName)
			if !ok {
				return nil, fmt.Errorf("schema %s.%s: unknown type %q", class, prop, typeName)
			}
			schema.Add(class, prop, t)
		}
	}
	return schema, nil
}
