// Package http wires the stream endpoints and the automation mutation
// surface into one gin router.
package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skipper/internal/events"
	"skipper/internal/ghl"
	"skipper/internal/workflow"
)

// Options carries the router's collaborators, constructed once at process
// start and injected here rather than reached as globals.
type Options struct {
	Executor *workflow.Executor
	GHL      *ghl.Service
	Registry *events.Registry

	// MetricsHandler serves /metrics; nil uses the default prometheus
	// handler.
	MetricsHandler http.Handler
}

// NewRouter builds the full route table.
func NewRouter(opts Options) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With", "X-User-ID"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	streams := NewStreamHandler(opts.Registry)
	ws := NewWSHandler(opts.Registry)
	api := NewAPIHandler(opts.Executor, opts.GHL)

	root := engine.Group("/api")
	{
		root.GET("/stream/session/:channelId", streams.Session)
		root.GET("/stream/execution/:channelId", streams.Execution)

		automation := root.Group("/automation")
		{
			automation.POST("/start-session", api.StartSession)
			automation.POST("/chat", api.Chat)
			automation.POST("/observe-page", api.ObservePage)
			automation.POST("/execute-actions", api.ExecuteActions)
			automation.POST("/extract-data", api.ExtractData)
			automation.POST("/multi-tab", api.MultiTab)
		}

		ghlGroup := root.Group("/ghl")
		{
			ghlGroup.POST("/login", api.GHLLogin)
			ghlGroup.POST("/extract/:kind", api.GHLExtract)
		}
	}

	engine.GET("/ws/session/:channelId", ws.Session)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	engine.GET("/metrics", gin.WrapH(metricsHandler))

	return engine
}
