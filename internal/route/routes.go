package route

import (
	"net/http"
	"os"
	"path/filepath"

	"livedetect/internal/config"
	"livedetect/internal/handler"
	"livedetect/internal/logger"
	"livedetect/internal/middleware"
	"livedetect/internal/observe"
	"livedetect/internal/repository"
	hub "livedetect/internal/service/websocket"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the services the routes talk to. Metrics may be nil.
type Deps struct {
	Hub        *hub.HubService
	Events     handler.ViewEvents
	Sessions   repository.SessionRepository
	Detections repository.DetectionRepository
	Active     handler.ActiveSession
	Metrics    *observe.Metrics
}

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication and metrics middleware.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, deps Deps) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	// Viewer page channel
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(deps.Hub, deps.Events, logger))

	// Session history
	mux.HandleFunc("/api/sessions", handler.GetSessionsHandler(logger, deps.Sessions, deps.Detections))
	mux.HandleFunc("/api/sessions/detections", handler.GetSessionDetectionsHandler(logger, deps.Sessions, deps.Detections))
	mux.HandleFunc("/api/sessions/stats", handler.GetStatsHandler(logger, deps.Sessions))
	mux.HandleFunc("/api/sessions/delete", handler.DeleteSessionHandler(cfg, logger, deps.Sessions, deps.Active))
	mux.HandleFunc("/api/sessions/clear", handler.ClearSessionsHandler(cfg, logger, deps.Sessions, deps.Active))
	mux.HandleFunc("/api/snapshots/view", handler.ViewSnapshotHandler(cfg))

	// Log endpoints
	mux.HandleFunc("/logs/info", handler.ShowLogsHandler(logger, "info.log"))
	mux.HandleFunc("/logs/warning", handler.ShowLogsHandler(logger, "warning.log"))
	mux.HandleFunc("/logs/error", handler.ShowLogsHandler(logger, "error.log"))

	mux.HandleFunc("/logs/info/clear", handler.ClearLogsHandler(logger, "info.log"))
	mux.HandleFunc("/logs/warning/clear", handler.ClearLogsHandler(logger, "warning.log"))
	mux.HandleFunc("/logs/error/clear", handler.ClearLogsHandler(logger, "error.log"))

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Prometheus scrape endpoint, fed by the OpenTelemetry exporter
	mux.Handle("/metrics", promhttp.Handler())

	// Automatic HTML handler mapping for example: /sessions -> <static>/sessions.html
	mux.HandleFunc("/", dynamicHTMLHandler(cfg.StaticDir))

	// Apply middleware
	var root http.Handler = middleware.AuthMiddleware(cfg.Password)(mux)
	if deps.Metrics != nil {
		root = observe.Middleware(deps.Metrics)(root)
	}
	return root
}
