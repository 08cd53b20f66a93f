package pipeline

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/ingest.schema.json
var ingestSchemaJSON []byte

const ingestSchemaURL = "https://schemas.realtimesignlanguage.dev/ingest.schema.json"

var ingestSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(ingestSchemaURL, bytes.NewReader(ingestSchemaJSON)); err != nil {
		panic(fmt.Sprintf("add ingest schema: %v", err))
	}
	schema, err := compiler.Compile(ingestSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("compile ingest schema: %v", err))
	}
	return schema
}

// DecodeIngest parses and validates one ingest message. Every failure is a
// *ValidationError.
func DecodeIngest(raw []byte) (Ingest, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Ingest{}, &ValidationError{Reason: "malformed json", Err: err}
	}
	if err := ingestSchema.Validate(payload); err != nil {
		return Ingest{}, &ValidationError{Reason: "schema", Err: err}
	}

	var in Ingest
	if err := json.Unmarshal(raw, &in); err != nil {
		return Ingest{}, &ValidationError{Reason: "decode", Err: err}
	}
	return in, nil
}

// sessionIDOf pulls a session id out of a message that failed validation so
// the ack can still name it.
func sessionIDOf(raw []byte) string {
	var probe struct {
		SessionID any `json:"session_id"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return ""
	}
	if s, ok := probe.SessionID.(string); ok {
		return s
	}
	return ""
}
