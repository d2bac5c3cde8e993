package catalog

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// topicSchema describes one topic YAML document.
const topicSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "title", "category", "levels"],
  "properties": {
    "id":          {"type": "string", "minLength": 1},
    "title":       {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "icon":        {"type": "string"},
    "category":    {"enum": ["anatomy", "botany", "cellular", "ecology", "biochemistry"]},
    "position":    {"type": "integer"},
    "levels": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["ordinal", "title", "labels"],
        "properties": {
          "id":           {"type": "string"},
          "ordinal":      {"type": "integer", "minimum": 1},
          "title":        {"type": "string", "minLength": 1},
          "description":  {"type": "string"},
          "total_labels": {"type": "integer", "minimum": 1},
          "layout":       {"enum": ["positional", "numbered"]},
          "labels": {
            "type": "array",
            "minItems": 1,
            "uniqueItems": true,
            "items": {"type": "string", "minLength": 1}
          },
          "points": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["x", "y"],
              "properties": {
                "x": {"type": "number", "minimum": 0, "maximum": 100},
                "y": {"type": "number", "minimum": 0, "maximum": 100}
              }
            }
          }
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(topicSchema)

// validateSchema checks a decoded YAML document against the topic schema.
func validateSchema(raw map[string]any) ([]string, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validating schema: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return msgs, nil
}

// validateDocument applies the rules the schema cannot express.
func validateDocument(doc document) []string {
	var msgs []string
	seen := make(map[int]bool, len(doc.Levels))
	for i, lvl := range doc.Levels {
		where := fmt.Sprintf("levels.%d", i)
		if seen[lvl.Ordinal] {
			msgs = append(msgs, fmt.Sprintf("%s: duplicate ordinal %d", where, lvl.Ordinal))
		}
		seen[lvl.Ordinal] = true

		if lvl.TotalLabels != 0 && lvl.TotalLabels != len(lvl.Labels) {
			msgs = append(msgs, fmt.Sprintf("%s: total_labels %d does not match %d labels", where, lvl.TotalLabels, len(lvl.Labels)))
		}
		if lvl.Layout == string(TargetNumbered) && len(lvl.Points) > 0 {
			msgs = append(msgs, fmt.Sprintf("%s: numbered layout cannot declare points", where))
		}
		if len(lvl.Points) > 0 && len(lvl.Points) != len(lvl.Labels) {
			msgs = append(msgs, fmt.Sprintf("%s: %d points for %d labels", where, len(lvl.Points), len(lvl.Labels)))
		}
	}
	for ord := 1; ord <= len(doc.Levels); ord++ {
		if !seen[ord] {
			msgs = append(msgs, fmt.Sprintf("levels: ordinals must run 1..%d, missing %d", len(doc.Levels), ord))
			break
		}
	}
	return msgs
}

// Problem describes one invalid content file.
type Problem struct {
	Path    string
	Details []string
}

func (p Problem) Error() string {
	return fmt.Sprintf("%s: %s", p.Path, strings.Join(p.Details, "; "))
}
