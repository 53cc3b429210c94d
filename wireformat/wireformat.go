// Package wireformat defines the binary buffer framing and the JSON payload
// structures exchanged between the WASM host and guest (plugins). These types
// must remain stable and backward compatible as they define the ABI contract.
//
// Every value crossing the host/guest boundary travels in a length-prefixed
// buffer: a 4-byte little-endian payload length followed by the payload
// bytes. Payloads are UTF-8 JSON for every operation except _schema, whose
// payload is a raw CDM schema source string.
package wireformat

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// LengthPrefixSize is the number of bytes reserved for the payload length.
const LengthPrefixSize = 4

// EncodeBuffer frames a payload as [4-byte LE length][payload].
func EncodeBuffer(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

// DecodeLength reads the payload length from the start of a framed buffer.
func DecodeLength(prefix []byte) (uint32, error) {
	if len(prefix) < LengthPrefixSize {
		return 0, fmt.Errorf("buffer too short for length prefix: %d bytes", len(prefix))
	}
	return binary.LittleEndian.Uint32(prefix), nil
}

// ConfigLevel identifies where a plugin configuration block appeared.
// Kind is "global", "model" or "field"; Model and Field narrow the scope.
type ConfigLevel struct {
	Kind  string `json:"kind"`
	Model string `json:"model,omitempty"`
	Field string `json:"field,omitempty"`
}

// GlobalLevel returns the top-level configuration scope.
func GlobalLevel() ConfigLevel {
	return ConfigLevel{Kind: "global"}
}

// ModelLevel returns the configuration scope for a single model.
func ModelLevel(model string) ConfigLevel {
	return ConfigLevel{Kind: "model", Model: model}
}

// FieldLevel returns the configuration scope for a single field.
func FieldLevel(model, field string) ConfigLevel {
	return ConfigLevel{Kind: "field", Model: model, Field: field}
}

// ValidationError is a single config diagnostic produced by a plugin's
// _validate_config export.
type ValidationError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// OutputFile is one generated artifact produced by _build or _migrate.
type OutputFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Schema is the resolved schema handed to _build and _migrate.
type Schema struct {
	Models      map[string]ModelDefinition `json:"models"`
	TypeAliases map[string]TypeExpression  `json:"type_aliases"`
}

// ModelDefinition describes one model and its fields.
type ModelDefinition struct {
	Name    string            `json:"name"`
	Parents []string          `json:"parents"`
	Fields  []FieldDefinition `json:"fields"`
	Config  json.RawMessage   `json:"config,omitempty"`
}

// FieldDefinition describes one field of a model.
type FieldDefinition struct {
	Name     string          `json:"name"`
	Type     TypeExpression  `json:"field_type"`
	Optional bool            `json:"optional"`
	Default  json.RawMessage `json:"default,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// TypeExpression is a type reference in a field or alias definition.
// Kind selects the variant: Name is set for identifiers, Element for arrays,
// Literal for literal types.
type TypeExpression struct {
	Kind    string          `json:"kind"`
	Name    string          `json:"name,omitempty"`
	Element *TypeExpression `json:"element,omitempty"`
	Literal json.RawMessage `json:"literal,omitempty"`
}

// Delta describes one schema change handed to _migrate. Kind is one of
// "model_added", "model_removed", "field_added", "field_removed" or
// "field_changed".
type Delta struct {
	Kind   string           `json:"kind"`
	Model  string           `json:"model,omitempty"`
	Field  string           `json:"field,omitempty"`
	Before *FieldDefinition `json:"before,omitempty"`
	After  *FieldDefinition `json:"after,omitempty"`
	// BeforeModel/AfterModel carry the full model for model-level deltas.
	BeforeModel *ModelDefinition `json:"before_model,omitempty"`
	AfterModel  *ModelDefinition `json:"after_model,omitempty"`
}
