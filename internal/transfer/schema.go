package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

const pointDef = `"point": {
      "type": "array",
      "prefixItems": [{"type": "number"}, {"type": "number"}],
      "minItems": 2,
      "maxItems": 2
    }`

const clipboardSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["repo", "items"],
  "properties": {
    "repo": {"type": "string", "format": "uuid"},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["x", "y", "kind"],
        "properties": {
          "x": {"type": "number"},
          "y": {"type": "number"},
          "w": {"type": "number", "minimum": 0},
          "h": {"type": "number", "minimum": 0},
          "kind": {"type": "integer", "enum": [0, 1, 2]},
          "text": {"type": "string"},
          "obj": {"type": "integer", "minimum": 1}
        },
        "additionalProperties": false
      }
    },
    "links": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["obj"],
        "properties": {
          "obj": {"type": "integer", "minimum": 1},
          "path": {"type": "array", "items": {"$ref": "#/$defs/point"}}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false,
  "$defs": {
    ` + pointDef + `
  }
}`

const streamSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["format", "version", "created", "proc"],
  "properties": {
    "format": {"const": "FlowLineStream"},
    "version": {"const": "0.1"},
    "created": {"type": "string", "format": "date-time"},
    "proc": {"$ref": "#/$defs/frame"}
  },
  "additionalProperties": false,
  "$defs": {
    "frame": {
      "type": "object",
      "required": ["tag"],
      "properties": {
        "tag": {"enum": ["proc", "func", "evt", "conn", "note", "fram"]},
        "oid": {"type": "integer", "minimum": 0},
        "text": {"type": "string"},
        "id": {"type": "string"},
        "ctyp": {"type": "integer", "minimum": 0, "maximum": 255},
        "posx": {"type": "number"},
        "posy": {"type": "number"},
        "w": {"type": "number", "minimum": 0},
        "h": {"type": "number", "minimum": 0},
        "items": {"type": "array", "items": {"$ref": "#/$defs/frame"}},
        "flows": {"type": "array", "items": {"$ref": "#/$defs/flow"}}
      },
      "additionalProperties": false
    },
    "flow": {
      "type": "object",
      "required": ["from", "to"],
      "properties": {
        "from": {"type": "integer", "minimum": 1},
        "to": {"type": "integer", "minimum": 1},
        "nlst": {"type": "array", "items": {"$ref": "#/$defs/point"}}
      },
      "additionalProperties": false
    },
    ` + pointDef + `
  }
}`

const (
	clipboardSchemaURL = "https://flowline.dev/schemas/clipboard.json"
	streamSchemaURL    = "https://flowline.dev/schemas/stream.json"
)

type schemas struct {
	clipboard *jsonschema.Schema
	stream    *jsonschema.Schema
}

func clipboardSchema(s *schemas) *jsonschema.Schema { return s.clipboard }

func streamSchema(s *schemas) *jsonschema.Schema { return s.stream }

var loadSchemas = sync.OnceValues(func() (*schemas, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	for url, src := range map[string]string{
		clipboardSchemaURL: clipboardSchemaJSON,
		streamSchemaURL:    streamSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}
	clip, err := c.Compile(clipboardSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile clipboard schema: %w", err)
	}
	stream, err := c.Compile(streamSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile stream schema: %w", err)
	}
	return &schemas{clipboard: clip, stream: stream}, nil
})

// decode validates data against the schema pick selects and unmarshals it
// into out.
func decode(data []byte, pick func(*schemas) *jsonschema.Schema, out any) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return malformed("document is not valid JSON", err)
	}
	if err := pick(all).Validate(doc); err != nil {
		return toStreamError(err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return malformed("decode document", err)
	}
	return nil
}

func malformed(msg string, cause error) *schema.FlowError {
	e := schema.NewError(schema.ErrCodeMalformedStream, msg)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}

// toStreamError turns a schema violation into a MALFORMED_STREAM error
// listing every leaf violation with its instance location.
func toStreamError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return malformed(err.Error(), err)
	}
	violations := collectViolations(verr)
	msg := verr.Error()
	switch {
	case len(violations) == 1:
		msg = violations[0]
	case len(violations) > 1:
		msg = fmt.Sprintf("document failed validation with %d errors", len(violations))
	}
	return malformed(msg, err).WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{fmt.Sprintf("/%s: %s", strings.Join(verr.InstanceLocation, "/"), verr.Error())}
	}
	var out []string
	for _, c := range verr.Causes {
		out = append(out, collectViolations(c)...)
	}
	return out
}
