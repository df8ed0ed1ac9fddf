package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/delphibot/internal/analysis"
	"github.com/alejandrodnm/delphibot/internal/dashboard"
	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const shutdownTimeout = 5 * time.Second

// Backend es lo que la API necesita del servicio. Lo implementa dashboard.Service.
type Backend interface {
	LiveMarket(ctx context.Context) (domain.LiveMarket, error)
	EntryMap(ctx context.Context, marketID string) (dashboard.EntryMapView, error)
	Chart(ctx context.Context, marketID, timeframe string) (domain.Chart, error)
	HumanBelief(ctx context.Context) (dashboard.HumanBelief, error)
	Historical(ctx context.Context) (analysis.Report, error)
}

// Config controla el servidor HTTP.
type Config struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server es la API JSON del dashboard.
type Server struct {
	cfg     Config
	backend Backend
	metrics http.Handler
	handler http.Handler
}

// NewServer crea el servidor. metrics puede ser nil.
func NewServer(cfg Config, backend Backend, metrics http.Handler) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		// human-belief puede tardar hasta el deadline de 9s de Delphi
		cfg.WriteTimeout = 30 * time.Second
	}

	s := &Server{cfg: cfg, backend: backend, metrics: metrics}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware, loggingMiddleware, recoverMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.Handle("/live-market", noStore(s.handleLiveMarket)).Methods(http.MethodGet)
	api.Handle("/entry-map", noStore(s.handleEntryMap)).Methods(http.MethodGet)
	api.Handle("/delphi-chart", noStore(s.handleChart)).Methods(http.MethodGet)
	api.Handle("/human-belief", noStore(s.handleHumanBelief)).Methods(http.MethodGet)
	api.Handle("/historical-analysis", noStore(s.handleHistorical)).Methods(http.MethodGet)

	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(router)
}

// Handler devuelve el handler completo (router + middlewares + CORS).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run sirve hasta que ctx se cancele y luego hace un shutdown ordenado.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi.Run: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi.Run: shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}
