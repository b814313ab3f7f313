package mcp

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/fte-hq/fte-connectors/internal/apperrors"
	"github.com/fte-hq/fte-connectors/internal/mailer"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "email-mcp"
	ServerVersion   = "1.0.0"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
	draftNotice     = "Draft created. Use send_email to send after approval."
)

// Server handles MCP protocol messages for the email tools. The mail
// provider is created once by the caller and shared across calls.
type Server struct {
	provider       mailer.Provider
	validator      *argValidator
	logger         *log.Logger
	now            func() time.Time
	maxMessageSize int
	initialized    bool
}

// NewServer creates a new MCP server instance sending through provider.
func NewServer(provider mailer.Provider, logger *log.Logger) (*Server, error) {
	validator, err := newArgValidator(ToolRegistry)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		provider:       provider,
		validator:      validator,
		logger:         logger,
		now:            time.Now,
		maxMessageSize: defaultMaxMessageSize,
	}, nil
}

// HandleMessage processes a JSON-RPC message and returns a response.
// Notifications yield a nil response.
func (s *Server) HandleMessage(ctx context.Context, msg []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		resp := rpcError(nil, ErrCodeParse, "Parse error: "+err.Error())
		return json.Marshal(resp)
	}

	if req.JSONRPC != jsonrpcVersion {
		resp := rpcError(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version")
		return json.Marshal(resp)
	}

	// Notifications never get a reply, and tools are not run for them since
	// the outcome could not be reported.
	if req.IsNotification() {
		return nil, nil
	}

	var resp Response
	switch req.Method {
	case "initialize":
		resp = s.handleInitialize(req)
	case "tools/list":
		resp = rpcResult(req.ID, ToolsListResult{Tools: ToolRegistry})
	case "tools/call":
		resp = s.handleToolsCall(ctx, req)
	case "ping":
		resp = rpcResult(req.ID, map[string]string{})
	default:
		resp = rpcError(req.ID, ErrCodeMethodNotFound, "Method not found: "+req.Method)
	}

	return json.Marshal(resp)
}

func (s *Server) handleInitialize(req Request) Response {
	var params InitializeParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcError(req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
		}
	}

	s.initialized = true
	if params.ClientInfo.Name != "" {
		s.logger.Printf("client connected: %s %s", params.ClientInfo.Name, params.ClientInfo.Version)
	}

	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      Implementation{Name: ServerName, Version: ServerVersion},
	}
	return rpcResult(req.ID, result)
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
	}

	payload, err := s.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Printf("tool %s failed: %v", params.Name, err)
		payload = FailureResult{
			Success: false,
			Error:   apperrors.MessageOf(err),
			Kind:    string(apperrors.KindOf(err)),
		}
	}

	block, mErr := jsonContent(payload)
	if mErr != nil {
		return rpcError(req.ID, ErrCodeInternal, "Failed to encode result: "+mErr.Error())
	}
	return rpcResult(req.ID, ToolCallResult{
		Content: []ContentBlock{block},
		IsError: err != nil,
	})
}

// CallTool validates and runs a tool, returning its success payload. Any
// panic raised below is converted to a TransportError.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = apperrors.New(apperrors.KindTransport, "tool %s panicked: %v", name, r)
		}
	}()

	if err := s.validator.Validate(name, args); err != nil {
		return nil, err
	}

	switch name {
	case ToolSendEmail:
		return s.toolSendEmail(ctx, args)
	case ToolDraftEmail:
		return s.toolDraftEmail(args), nil
	default:
		return nil, apperrors.New(apperrors.KindUnknownTool, "Unknown tool: %s", name)
	}
}

func (s *Server) toolSendEmail(ctx context.Context, args map[string]any) (*SendResult, error) {
	msg := mailer.Message{
		To:      getString(args, "to", ""),
		Subject: getString(args, "subject", ""),
		Body:    getString(args, "body", ""),
		HTML:    getBool(args, "html", false),
	}
	if s.provider == nil {
		return nil, apperrors.New(apperrors.KindTransport, "no email provider configured")
	}

	receipt, err := s.provider.Send(ctx, msg)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindValidation {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.KindTransport, err, "failed to send email")
	}

	s.logger.Printf("email sent to %s (%s)", msg.To, receipt.MessageID)
	return &SendResult{
		Success:   true,
		MessageID: receipt.MessageID,
		To:        msg.To,
		Subject:   msg.Subject,
		Timestamp: s.now().UTC().Format(timestampLayout),
	}, nil
}

func (s *Server) toolDraftEmail(args map[string]any) *DraftResult {
	return &DraftResult{
		Success: true,
		Draft: Draft{
			To:      getString(args, "to", ""),
			Subject: getString(args, "subject", ""),
			Body:    getString(args, "body", ""),
			Created: s.now().UTC().Format(timestampLayout),
			Status:  "draft",
		},
		Message: draftNotice,
	}
}

// Helper to get string from args
func getString(args map[string]any, key string, defaultVal string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// Helper to get bool from args
func getBool(args map[string]any, key string, defaultVal bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}
