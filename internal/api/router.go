package api

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fte-hq/fte-connectors/internal/middleware"
)

// RouterOptions control the optional parts of the router.
type RouterOptions struct {
	MetricsEnabled bool
	MetricsPath    string
	Logger         *log.Logger
}

// NewRouter builds the gin engine for the WhatsApp facade.
func NewRouter(session Session, opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[HTTP] ", log.LstdFlags)
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(opts.Logger))
	if opts.MetricsEnabled {
		r.Use(middleware.Metrics())
		r.GET(opts.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	r.GET("/healthz", HandleHealth)
	r.GET("/version", HandleVersion)

	h := NewWhatsAppHandlers(session)
	wa := r.Group("/api/whatsapp")
	{
		wa.POST("/initialize", h.HandleInitialize)
		wa.POST("/send", h.HandleSend)
		wa.GET("/chats", h.HandleChats)
		wa.GET("/status", h.HandleStatus)
	}

	return r
}
