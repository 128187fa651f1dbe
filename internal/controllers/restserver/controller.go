// Package restserver exposes the tracking session and its stored history over HTTP.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/interfaces"
	"github.com/chrissnell/altiguard/internal/log"
	"github.com/chrissnell/altiguard/internal/session"
	"github.com/chrissnell/altiguard/internal/storage"
	"github.com/chrissnell/altiguard/pkg/config"
)

const shutdownTimeout = 5 * time.Second

// SessionManager starts and stops the background tracking session.
type SessionManager interface {
	StartBackgroundSession(ctx context.Context) (string, error)
	StopBackgroundSession(ctx context.Context) error
	Tracker() *session.Tracker
	Expired() bool
}

// Controller represents the REST server controller
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	cfg      config.APIData
	Server   http.Server
	manager  SessionManager
	store    interfaces.Store
	health   *storage.HealthManager
	logger   *zap.SugaredLogger
	handlers *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg config.APIData, mgr SessionManager, store interfaces.Store, health *storage.HealthManager, logger *zap.SugaredLogger) (*Controller, error) {
	if mgr == nil {
		return nil, fmt.Errorf("REST server requires a session manager")
	}
	if store == nil {
		return nil, fmt.Errorf("REST server requires a store")
	}
	if health == nil {
		health = storage.NewHealthManager()
	}

	if cfg.ListenAddr == "" {
		logger.Info("api.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		cfg.ListenAddr = "0.0.0.0"
	}
	if cfg.Port == 0 {
		logger.Info("api.port not provided; defaulting to 8080")
		cfg.Port = 8080
	}

	ctrl := &Controller{
		ctx:     ctx,
		wg:      wg,
		cfg:     cfg,
		manager: mgr,
		store:   store,
		health:  health,
		logger:  logger,
	}
	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", cfg.ListenAddr, cfg.Port)
	ctrl.Server.Handler = ctrl.Router()

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infow("starting REST server", "addr", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.cfg.Cert != "" && c.cfg.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.cfg.Cert, c.cfg.Key); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.Server.Shutdown(ctx)
	}()

	return nil
}

// Router configures the HTTP router with all endpoints
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(c.logger.Named("http")))

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", c.handlers.GetHealth).Methods(http.MethodGet)

	api.HandleFunc("/session", c.handlers.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/session/start", c.handlers.StartSession).Methods(http.MethodPost)
	api.HandleFunc("/session/stop", c.handlers.StopSession).Methods(http.MethodPost)
	api.HandleFunc("/session/stream", c.handlers.StreamSessionState).Methods(http.MethodGet)

	api.HandleFunc("/sessions", c.handlers.ListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", c.handlers.GetSessionRecord).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/points", c.handlers.GetPoints).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/points", c.handlers.DeletePoints).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/replay", c.handlers.ReplaySession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/stream", c.handlers.StreamPoints).Methods(http.MethodGet)

	return router
}
