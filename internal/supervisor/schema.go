package supervisor

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ecosystemSchema is the structural schema of the supervision file.
var ecosystemSchema = map[string]interface{}{
	"$schema":  "http://json-schema.org/draft-07/schema#",
	"title":    "Process Supervision",
	"type":     "object",
	"required": []string{"apps"},
	"properties": map[string]interface{}{
		"apps": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items": map[string]interface{}{
				"type":     "object",
				"required": []string{"name", "script"},
				"properties": map[string]interface{}{
					"name":               map[string]interface{}{"type": "string", "minLength": 1},
					"script":             map[string]interface{}{"type": "string", "minLength": 1},
					"interpreter":        map[string]interface{}{"type": "string"},
					"instances":          map[string]interface{}{"type": "integer", "minimum": 1},
					"exec_mode":          map[string]interface{}{"type": "string", "enum": []string{"fork", "cluster"}},
					"autorestart":        map[string]interface{}{"type": "boolean"},
					"watch":              map[string]interface{}{"type": "boolean"},
					"max_memory_restart": map[string]interface{}{"type": "string", "pattern": "^[0-9]+[KkMmGg]?[Bb]?$"},
					"min_uptime":         map[string]interface{}{"type": "string"},
					"max_restarts":       map[string]interface{}{"type": "integer", "minimum": 0},
					"restart_delay":      map[string]interface{}{"type": "integer", "minimum": 0},
					"env":                envSchema,
					"error_file":         map[string]interface{}{"type": "string"},
					"out_file":           map[string]interface{}{"type": "string"},
					"log_date_format":    map[string]interface{}{"type": "string"},
					"merge_logs":         map[string]interface{}{"type": "boolean"},
				},
				"additionalProperties": false,
			},
		},
		"deploy": map[string]interface{}{
			"type": "object",
			"additionalProperties": map[string]interface{}{
				"type":     "object",
				"required": []string{"user", "host", "ref", "repo", "path"},
				"properties": map[string]interface{}{
					"user":        map[string]interface{}{"type": "string", "minLength": 1},
					"host":        map[string]interface{}{"type": "array", "minItems": 1, "items": map[string]interface{}{"type": "string"}},
					"ref":         map[string]interface{}{"type": "string"},
					"repo":        map[string]interface{}{"type": "string"},
					"path":        map[string]interface{}{"type": "string"},
					"post-deploy": map[string]interface{}{"type": "string"},
					"env":         envSchema,
				},
			},
		},
	},
}

var envSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": map[string]interface{}{"type": "string"},
}

var compiledSchema = func() *gojsonschema.Schema {
	raw, err := json.Marshal(ecosystemSchema)
	if err != nil {
		panic(fmt.Sprintf("supervisor: marshal schema: %v", err))
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("supervisor: compile schema: %v", err))
	}
	return schema
}()

// validateStructure checks a decoded document against the schema and
// returns one message per violation.
func validateStructure(doc interface{}) ([]string, error) {
	result, err := compiledSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	var problems []string
	for _, re := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
	}
	return problems, nil
}
