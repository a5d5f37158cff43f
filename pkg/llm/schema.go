package llm

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/swaggest/jsonschema-go"
)

// ToolDefinitionFromStruct generates a ToolDefinition whose parameters are
// reflected from a Go struct using the swaggest/jsonschema-go library.
// Parameter order follows struct field declaration order so fallback schema
// rendering stays deterministic.
//
// Example:
//
//	type WeatherParams struct {
//	    City string `json:"city" required:"true" description:"City name"`
//	    Unit string `json:"unit,omitempty" description:"celsius or fahrenheit"`
//	}
//	def, err := ToolDefinitionFromStruct("get_weather", "Current weather", WeatherParams{})
func ToolDefinitionFromStruct(name, description string, structType interface{}) (ToolDefinition, error) {
	def := ToolDefinition{Name: name, Description: description}

	reflector := jsonschema.Reflector{}
	schema, err := reflector.Reflect(structType)
	if err != nil {
		return def, fmt.Errorf("failed to reflect struct to JSON schema: %w", err)
	}

	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}

	for _, fieldName := range structFieldOrder(structType) {
		prop, ok := schema.Properties[fieldName]
		if !ok || prop.TypeObject == nil {
			continue
		}
		def.Parameters = append(def.Parameters, ToolParameter{
			Name:        fieldName,
			Type:        schemaTypeName(prop.TypeObject),
			Description: schemaDescription(prop.TypeObject),
			Required:    required[fieldName],
		})
	}

	return def, nil
}

// structFieldOrder returns the JSON property names of a struct's exported
// fields in declaration order
func structFieldOrder(structType interface{}) []string {
	t := reflect.TypeOf(structType)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	var names []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName := strings.Split(tag, ",")[0]
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		names = append(names, name)
	}
	return names
}

func schemaTypeName(s *jsonschema.Schema) string {
	if s.Type != nil && s.Type.SimpleTypes != nil {
		return string(*s.Type.SimpleTypes)
	}
	return "string"
}

func schemaDescription(s *jsonschema.Schema) string {
	if s.Description != nil {
		return *s.Description
	}
	return ""
}
