package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/huddlechat/huddle-server/internal/config"
	"github.com/huddlechat/huddle-server/internal/core"
	"github.com/huddlechat/huddle-server/internal/store"
)

// NewServer builds an HTTP server with the REST and WebSocket routes.
// The WebSocket upgrade hijacks the raw connection, so /ws is registered
// on the plain mux rather than behind gin's ResponseWriter.
func NewServer(hub *core.Hub, st store.Store, callLog store.CallLogStore, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.ClientOrigin))

	router.GET("/health", healthHandler(st))

	api := router.Group("/api")
	api.GET("/rooms", roomsHandler(st))
	api.GET("/calls", callsHandler(callLog))

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg.ReadLimit, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
