package rotation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// payloadSchema describes the JSON document stored in every secret version.
const payloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["access_key_id", "secret_access_key"],
  "properties": {
    "access_key_id":     {"type": "string", "minLength": 1},
    "secret_access_key": {"type": "string", "minLength": 1}
  }
}`

var payloadSchemaLoader = gojsonschema.NewStringLoader(payloadSchema)

// EncodePayload renders p as the JSON document written to the store.
func EncodePayload(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload validates a stored document against the payload schema and
// decodes it. Seeded placeholder values pass; they are filtered later by
// IsAccessKeyID.
func DecodePayload(data []byte) (Payload, error) {
	result, err := gojsonschema.Validate(payloadSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Payload{}, fmt.Errorf("payload is not valid JSON: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return Payload{}, fmt.Errorf("payload schema validation failed: %s", strings.Join(errorMessages, "; "))
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("failed to decode payload: %w", err)
	}
	return p, nil
}
