package llm

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

type schema struct {
	name     string
	compiled *jsonschema.Schema
}

func mustCompile(name, src string) *schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := "https://tender-intel.local/llm/" + name + ".schema.json"
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		panic(eris.Wrapf(err, "llm: load %s schema", name))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(eris.Wrapf(err, "llm: compile %s schema", name))
	}
	return &schema{name: name, compiled: compiled}
}

func (s *schema) validate(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return eris.Wrapf(err, "llm: %s response is not JSON", s.name)
	}
	if err := s.compiled.Validate(v); err != nil {
		return eris.Wrapf(err, "llm: %s response failed schema", s.name)
	}
	return nil
}

var extractionSchema = mustCompile("extraction", `{
  "type": "object",
  "properties": {
    "title":        {"type": ["string", "null"]},
    "agency":       {"type": ["string", "null"]},
    "tender_ref":   {"type": ["string", "null"]},
    "closing_date": {"type": ["string", "null"]},
    "publish_date": {"type": ["string", "null"]},
    "budget":       {"type": ["string", "null"]},
    "description":  {"type": ["string", "null"]}
  },
  "additionalProperties": false
}`)

var classificationSchema = mustCompile("classification", `{
  "type": "object",
  "required": ["category_tags"],
  "properties": {
    "category_tags": {"type": "array", "items": {"type": "string"}, "maxItems": 4}
  }
}`)

var sourceCheckSchema = mustCompile("source_check", `{
  "type": "object",
  "required": ["is_tender_source"],
  "properties": {
    "is_tender_source": {"type": "boolean"},
    "reason": {"type": "string"}
  }
}`)

var calibrationSchema = mustCompile("calibration", `{
  "type": "object",
  "required": ["summary", "no_changes_needed", "recommendations"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "no_changes_needed": {"type": "boolean"},
    "recommendations": {
      "type": "array",
      "maxItems": 10,
      "items": {
        "type": "object",
        "required": ["type", "target", "description", "confidence", "supporting_evidence"],
        "properties": {
          "type": {"enum": ["weight_adjustment", "add_known_agency", "add_track_record_keyword", "downgrade_category"]},
          "target": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "current_value": {"type": ["number", "null"]},
          "recommended_value": {"type": ["number", "null"], "minimum": 0, "maximum": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "supporting_evidence": {"type": "string"}
        }
      }
    }
  }
}`)
