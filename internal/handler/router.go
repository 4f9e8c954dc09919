package handler

import (
	"net/http"

	"offline-sync-engine/internal/middleware"
	"offline-sync-engine/pkg/response"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Documents  *DocumentHandler
	Businesses *BusinessHandler
	Sync       *SyncHandler
	WebSocket  *WebSocketHandler
	Logger     *zap.Logger

	// Metrics serves /metrics when set; RequestMetrics counts API traffic.
	Metrics        http.Handler
	RequestMetrics *middleware.PrometheusMiddleware

	// JWTSecret enables bearer auth on /api/v1 when set.
	JWTSecret string

	CORSAllowedOrigins string
	CORSAllowedMethods string
	CORSAllowedHeaders string
}

func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(cfg.Logger))
	if cfg.RequestMetrics != nil {
		r.Use(cfg.RequestMetrics.Handler)
	}
	if cfg.CORSAllowedOrigins != "" {
		r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders))
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	if cfg.JWTSecret != "" {
		api.Use(middleware.AuthMiddleware(cfg.JWTSecret, cfg.Logger))
	}

	api.HandleFunc("/sync/status", cfg.Sync.Status).Methods("GET", "OPTIONS")
	api.HandleFunc("/sync/manual", cfg.Sync.Manual).Methods("POST", "OPTIONS")
	api.HandleFunc("/sync/intents", cfg.Sync.Intents).Methods("GET", "OPTIONS")

	// Collection specific routes must be registered before the generic
	// /{collection}/{id} ones.
	api.HandleFunc("/businesses/with-article-count", cfg.Businesses.ListWithArticleCount).Methods("GET", "OPTIONS")
	api.HandleFunc("/businesses/{id}/articles", cfg.Businesses.ListArticles).Methods("GET", "OPTIONS")
	api.HandleFunc("/businesses/{id}", cfg.Businesses.Delete).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/articles/search", cfg.Businesses.SearchArticles).Methods("GET", "OPTIONS")
	api.HandleFunc("/articles/with-business-name", cfg.Businesses.ListArticlesWithBusinessName).Methods("GET", "OPTIONS")

	api.HandleFunc("/{collection}", cfg.Documents.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/{collection}", cfg.Documents.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/{collection}/{id}", cfg.Documents.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/{collection}/{id}", cfg.Documents.Update).Methods("PUT", "OPTIONS")
	api.HandleFunc("/{collection}/{id}", cfg.Documents.Delete).Methods("DELETE", "OPTIONS")

	if cfg.WebSocket != nil {
		r.HandleFunc("/ws", cfg.WebSocket.HandleConnection)
	}

	r.HandleFunc("/health", cfg.Sync.Health).Methods("GET")
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics).Methods("GET")
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "route not found")
	})

	return r
}
