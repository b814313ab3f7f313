package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fte-hq/fte-connectors/internal/apperrors"
)

const (
	ToolSendEmail  = "send_email"
	ToolDraftEmail = "draft_email"
)

var nonEmpty = func() *int { n := 1; return &n }()

// ToolRegistry contains the tools exposed by the email server.
var ToolRegistry = []Tool{
	{
		Name:        ToolSendEmail,
		Description: "Send an email via the configured SMTP account",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"to": {
					Type:        "string",
					Description: "Recipient email address",
					MinLength:   nonEmpty,
				},
				"subject": {
					Type:        "string",
					Description: "Email subject",
					MinLength:   nonEmpty,
				},
				"body": {
					Type:        "string",
					Description: "Email body (plain text or HTML)",
					MinLength:   nonEmpty,
				},
				"html": {
					Type:        "boolean",
					Description: "Whether body is HTML (default: false)",
					Default:     false,
				},
			},
			Required: []string{"to", "subject", "body"},
		},
	},
	{
		Name:        ToolDraftEmail,
		Description: "Create a draft email (does not send)",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"to": {
					Type:        "string",
					Description: "Recipient email address",
					MinLength:   nonEmpty,
				},
				"subject": {
					Type:        "string",
					Description: "Email subject",
					MinLength:   nonEmpty,
				},
				"body": {
					Type:        "string",
					Description: "Email body",
					MinLength:   nonEmpty,
				},
			},
			Required: []string{"to", "subject", "body"},
		},
	},
}

// SendResult is the payload of a successful send_email call.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Timestamp string `json:"timestamp"`
}

// Draft is an unsent email produced by draft_email.
type Draft struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Created string `json:"created"`
	Status  string `json:"status"`
}

// DraftResult is the payload of a successful draft_email call.
type DraftResult struct {
	Success bool   `json:"success"`
	Draft   Draft  `json:"draft"`
	Message string `json:"message"`
}

// FailureResult is the payload of any failed tool call.
type FailureResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}

// argValidator checks tool argument bags against the registered schemas.
type argValidator struct {
	schemas map[string]*gojsonschema.Schema
	tools   map[string]Tool
}

func newArgValidator(tools []Tool) (*argValidator, error) {
	v := &argValidator{
		schemas: make(map[string]*gojsonschema.Schema, len(tools)),
		tools:   make(map[string]Tool, len(tools)),
	}
	for _, tool := range tools {
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema for %s: %w", tool.Name, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", tool.Name, err)
		}
		v.schemas[tool.Name] = schema
		v.tools[tool.Name] = tool
	}
	return v, nil
}

// Validate returns an UnknownTool or ValidationError for a bad invocation.
func (v *argValidator) Validate(name string, args map[string]any) error {
	schema, ok := v.schemas[name]
	if !ok {
		return apperrors.New(apperrors.KindUnknownTool, "Unknown tool: %s", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, err, "Invalid arguments")
	}
	if result.Valid() {
		return nil
	}

	missing := false
	var problems []string
	for _, re := range result.Errors() {
		switch re.Type() {
		case "required", "string_gte":
			missing = true
		default:
			problems = append(problems, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
		}
	}
	if missing {
		return apperrors.New(apperrors.KindValidation, "Missing required fields: %s",
			strings.Join(v.tools[name].InputSchema.Required, ", "))
	}
	sort.Strings(problems)
	return apperrors.New(apperrors.KindValidation, "Invalid arguments: %s", strings.Join(problems, "; "))
}
