// Package jsonschema validates response bodies against JSON schemas.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled schema, safe for concurrent use.
type Schema struct {
	compiled *jsonschema.Schema
}

// Compile compiles a schema document.
func Compile(schemaStr string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

var cache sync.Map // schema text -> *Schema

// CompileCached compiles schemaStr once per process.
func CompileCached(schemaStr string) (*Schema, error) {
	if s, ok := cache.Load(schemaStr); ok {
		return s.(*Schema), nil
	}
	s, err := Compile(schemaStr)
	if err != nil {
		return nil, err
	}
	actual, _ := cache.LoadOrStore(schemaStr, s)
	return actual.(*Schema), nil
}

// Validate checks body against the schema. It returns nil when valid and
// ValidationErrors listing every violation otherwise.
func (s *Schema) Validate(body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return ValidationErrors{fmt.Errorf("invalid JSON: %w", err)}
	}

	if err := s.compiled.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return extractValidationErrors(verr)
		}
		return ValidationErrors{err}
	}
	return nil
}

// Validate compiles schemaStr and validates body against it. A schema that
// does not compile is reported as an error with ok=false.
func Validate(body []byte, schemaStr string) (bool, error) {
	s, err := CompileCached(schemaStr)
	if err != nil {
		return false, err
	}
	if err := s.Validate(body); err != nil {
		return false, err
	}
	return true, nil
}

// extractValidationErrors flattens the leaf causes of a ValidationError.
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var out ValidationErrors

	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out = append(out, fmt.Errorf("%s: %s", loc, err.Message))
		return out
	}

	for _, cause := range err.Causes {
		out = append(out, extractValidationErrors(cause)...)
	}
	return out
}
