package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fte-hq/fte-connectors/internal/apperrors"
	"github.com/fte-hq/fte-connectors/internal/version"
	"github.com/fte-hq/fte-connectors/internal/whatsapp"
)

const (
	isoLayout       = "2006-01-02T15:04:05.000Z07:00"
	notReadyMessage = "WhatsApp not initialized or not ready"
)

// Session is the WhatsApp session the handlers drive.
type Session interface {
	Initialize(ctx context.Context) (bool, error)
	SendMessage(ctx context.Context, contact, body string) (whatsapp.SendResult, error)
	ListConversations(ctx context.Context) []whatsapp.Conversation
	Status() whatsapp.Status
}

// SendRequest is the body of POST /api/whatsapp/send.
type SendRequest struct {
	Contact string `json:"contact"`
	Message string `json:"message"`
}

// WhatsAppHandlers serves the /api/whatsapp endpoints for one session.
type WhatsAppHandlers struct {
	session Session
}

// NewWhatsAppHandlers binds handlers to session.
func NewWhatsAppHandlers(session Session) *WhatsAppHandlers {
	return &WhatsAppHandlers{session: session}
}

// HandleInitialize handles POST /api/whatsapp/initialize.
func (h *WhatsAppHandlers) HandleInitialize(c *gin.Context) {
	if h.session.Status().Ready {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Already initialized"})
		return
	}

	ready, err := h.session.Initialize(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		status := http.StatusInternalServerError
		if apperrors.KindOf(err) == apperrors.KindTimeout {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{"success": false, "error": apperrors.MessageOf(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": ready})
}

// HandleSend handles POST /api/whatsapp/send.
func (h *WhatsAppHandlers) HandleSend(c *gin.Context) {
	if !h.session.Status().Ready {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": notReadyMessage})
		return
	}

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Contact) == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Missing required fields: contact, message"})
		return
	}

	result, err := h.session.SendMessage(c.Request.Context(), req.Contact, req.Message)
	if err != nil {
		_ = c.Error(err)
		status := http.StatusOK
		switch apperrors.KindOf(err) {
		case apperrors.KindNotReady, apperrors.KindValidation:
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"success": false, "error": apperrors.MessageOf(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"contact":   result.Contact,
		"timestamp": formatTime(result.Timestamp),
	})
}

// HandleChats handles GET /api/whatsapp/chats.
func (h *WhatsAppHandlers) HandleChats(c *gin.Context) {
	if !h.session.Status().Ready {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": notReadyMessage})
		return
	}

	chats := h.session.ListConversations(c.Request.Context())
	if chats == nil {
		chats = []whatsapp.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chats": chats})
}

// HandleStatus handles GET /api/whatsapp/status. It never fails.
func (h *WhatsAppHandlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Status())
}

// HandleHealth handles GET /healthz.
func HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleVersion handles GET /version.
func HandleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}
