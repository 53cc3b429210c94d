package sdk

import (
	"encoding/json"

	"github.com/cdm-lang/cdm/wireformat"
)

// emptyResult is the payload a handler answers with when it cannot decode
// its input or encode its output.
const emptyResult = "[]"

// SchemaFunc returns the plugin's schema fragment as raw source text.
type SchemaFunc func() string

// ValidateFunc checks one configuration block at one level.
type ValidateFunc func(level wireformat.ConfigLevel, config json.RawMessage) []wireformat.ValidationError

// BuildFunc generates files from a resolved schema.
type BuildFunc func(schema wireformat.Schema, config json.RawMessage) []wireformat.OutputFile

// MigrateFunc generates migration files from a schema change set.
type MigrateFunc func(schema wireformat.Schema, deltas []wireformat.Delta, config json.RawMessage) []wireformat.OutputFile

// schemaPayload runs a schema callback. The schema payload is raw text, not
// JSON.
func schemaPayload(fn SchemaFunc) []byte {
	return []byte(fn())
}

// validatePayload decodes the validate arguments, runs the callback, and
// encodes its findings. Undecodable input yields the empty result.
func validatePayload(levelJSON, configJSON []byte, fn ValidateFunc) []byte {
	var level wireformat.ConfigLevel
	if err := json.Unmarshal(levelJSON, &level); err != nil {
		return []byte(emptyResult)
	}
	if !json.Valid(configJSON) {
		return []byte(emptyResult)
	}

	errs := fn(level, configJSON)
	if errs == nil {
		errs = []wireformat.ValidationError{}
	}
	return marshalOrEmpty(errs)
}

// buildPayload decodes the build arguments, runs the callback, and encodes
// the generated files.
func buildPayload(schemaJSON, configJSON []byte, fn BuildFunc) []byte {
	var schema wireformat.Schema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return []byte(emptyResult)
	}
	if !json.Valid(configJSON) {
		return []byte(emptyResult)
	}

	files := fn(schema, configJSON)
	if files == nil {
		files = []wireformat.OutputFile{}
	}
	return marshalOrEmpty(files)
}

// migratePayload decodes the migrate arguments, runs the callback, and
// encodes the generated files.
func migratePayload(schemaJSON, deltasJSON, configJSON []byte, fn MigrateFunc) []byte {
	var schema wireformat.Schema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return []byte(emptyResult)
	}
	var deltas []wireformat.Delta
	if err := json.Unmarshal(deltasJSON, &deltas); err != nil {
		return []byte(emptyResult)
	}
	if !json.Valid(configJSON) {
		return []byte(emptyResult)
	}

	files := fn(schema, deltas, configJSON)
	if files == nil {
		files = []wireformat.OutputFile{}
	}
	return marshalOrEmpty(files)
}

func marshalOrEmpty(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(emptyResult)
	}
	return data
}
