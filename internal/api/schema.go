package api

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// submitPermitSchema describes POST /v1/permits and /v1/permits/deposit.
// Values are decimal strings so that amounts above 2^53 survive JSON.
const submitPermitSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["owner", "spender", "value", "deadline", "v", "r", "s"],
  "additionalProperties": false,
  "properties": {
    "owner":    {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "spender":  {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "value":    {"type": "string", "pattern": "^[0-9]*\\.?[0-9]+$"},
    "deadline": {"type": "string", "minLength": 1},
    "v":        {"type": "string", "pattern": "^(0x)?[0-9a-fA-F]+$"},
    "r":        {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"},
    "s":        {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"}
  }
}`

var submitPermitLoader = gojsonschema.NewStringLoader(submitPermitSchema)

// validate checks body against the submit schema and returns the violations
// joined into one message.
func validate(body []byte) error {
	result, err := gojsonschema.Validate(submitPermitLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return errors.Wrap(err, "invalid JSON")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}
