// Package openapi publishes record schemas as OpenAPI 3 components.
package openapi

import (
	"fmt"
	"time"

	stored "github.com/goliatone/go-stored"
)

// SchemaFor renders one record schema as an OpenAPI object schema. Every
// attribute is required since hydration always fills defaults.
func SchemaFor(schema *stored.Schema) (map[string]any, error) {
	if schema == nil {
		return nil, fmt.Errorf("openapi: schema cannot be nil")
	}
	properties := make(map[string]any, schema.Len())
	required := make([]string, 0, schema.Len())
	for _, field := range schema.Fields() {
		prop, err := propertyFor(field.Default)
		if err != nil {
			return nil, fmt.Errorf("openapi: %s.%s: %w", schema.TypeName(), field.Name, err)
		}
		properties[field.Name] = prop
		required = append(required, field.Name)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}, nil
}

func propertyFor(def stored.Value) (map[string]any, error) {
	switch def.Kind() {
	case stored.KindInt:
		n, _ := def.AsInt()
		return map[string]any{"type": "integer", "default": n}, nil
	case stored.KindString:
		s, _ := def.AsString()
		return map[string]any{"type": "string", "default": s}, nil
	case stored.KindTime:
		t, _ := def.AsTime()
		return map[string]any{
			"type":    "string",
			"format":  "date-time",
			"default": t.Format(time.RFC3339),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", def.Kind())
	}
}

// Generate builds an OpenAPI document with one component and one read path
// per schema, in input order.
func Generate(schemas []*stored.Schema, opts ...GeneratorOption) (map[string]any, error) {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	names := newComponentNames()
	components := make(map[string]any, len(schemas))
	paths := make(map[string]any, len(schemas))
	for _, schema := range schemas {
		doc, err := SchemaFor(schema)
		if err != nil {
			return nil, err
		}
		name := names.unique(schema.TypeName())
		components[name] = doc
		paths[fmt.Sprintf("%s/%s/{key}", cfg.pathPrefix, schema.TypeName())] = readPath(cfg, schema.TypeName(), name)
	}

	info := map[string]any{
		"title":   cfg.info.Title,
		"version": cfg.info.Version,
	}
	if cfg.info.Description != "" {
		info["description"] = cfg.info.Description
	}

	document := map[string]any{
		"openapi": cfg.openAPIVersion,
		"info":    info,
		"paths":   paths,
	}
	if len(components) > 0 {
		document["components"] = map[string]any{"schemas": components}
	}
	if err := validateDocument(document); err != nil {
		return nil, err
	}
	return document, nil
}

// Registered generates a document for every registered schema.
func Registered(opts ...GeneratorOption) (map[string]any, error) {
	typeNames := stored.RegisteredSchemas()
	schemas := make([]*stored.Schema, 0, len(typeNames))
	for _, name := range typeNames {
		if schema, ok := stored.SchemaFor(name); ok {
			schemas = append(schemas, schema)
		}
	}
	return Generate(schemas, opts...)
}

func readPath(cfg generatorConfig, typeName, component string) map[string]any {
	return map[string]any{
		"get": map[string]any{
			"operationId": "get:" + typeName,
			"parameters": []any{
				map[string]any{
					"name":     "key",
					"in":       "path",
					"required": true,
					"schema":   map[string]any{"type": "string"},
				},
			},
			"responses": map[string]any{
				"200": map[string]any{
					"description": "OK",
					"content": map[string]any{
						cfg.contentType: map[string]any{
							"schema": map[string]any{"$ref": "#/components/schemas/" + component},
						},
					},
				},
			},
		},
	}
}

func validateDocument(document map[string]any) error {
	if v, _ := document["openapi"].(string); v == "" {
		return fmt.Errorf("openapi: document version is required")
	}
	info, _ := document["info"].(map[string]any)
	if title, _ := info["title"].(string); title == "" {
		return fmt.Errorf("openapi: info.title is required")
	}
	if version, _ := info["version"].(string); version == "" {
		return fmt.Errorf("openapi: info.version is required")
	}
	return nil
}
