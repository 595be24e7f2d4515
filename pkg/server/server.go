package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bashkirian/kpi-engine/internal/config"
	"github.com/bashkirian/kpi-engine/internal/engine"
	"github.com/bashkirian/kpi-engine/internal/handler"
	"github.com/bashkirian/kpi-engine/internal/storage"
)

type Server struct {
	httpServer *http.Server
	store      storage.Storage
	log        *zap.Logger
}

// NewServer открывает хранилище из конфигурации. Если задан redis.addr,
// выборки событий кэшируются в Redis.
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if cfg.Redis.Addr != "" {
		log.Info("using redis event cache", zap.String("addr", cfg.Redis.Addr))
		store = storage.NewCachedStorage(store, storage.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL(),
		}, log)
	}
	srv, err := NewServerWithStorage(cfg, store, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return srv, nil
}

func NewServerWithStorage(cfg *config.Config, store storage.Storage, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	defaults, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}

	eng := engine.New(store, store,
		engine.WithMenuFeed(store),
		engine.WithDefaults(defaults),
		engine.WithLogger(log.Named("engine")),
	)
	h := handler.New(eng, store, log.Named("handler"))

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, loggingMiddleware(log.Named("http")))
	h.Register(r)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		store:      store,
		log:        log,
	}, nil
}

// Handler корневой обработчик, для тестов
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Info("server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown останавливает HTTP и закрывает хранилище
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
