package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kittipos-w/paygate/internal/db"
	"github.com/kittipos-w/paygate/internal/handlers"
	"github.com/kittipos-w/paygate/internal/logger"
	"github.com/kittipos-w/paygate/internal/repository/postgres"
	"github.com/kittipos-w/paygate/internal/service/account"
	"github.com/kittipos-w/paygate/internal/service/auth"
	"github.com/kittipos-w/paygate/internal/service/token"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	if c.DatabaseDSN == "" {
		return nil, errors.New("database DSN must be set")
	}

	tokenPrice, err := decimal.NewFromString(c.TokenPrice)
	if err != nil || tokenPrice.IsNegative() {
		return nil, fmt.Errorf("token price %q is not a valid non negative decimal", c.TokenPrice)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	sessions, err := auth.NewSessionManager(auth.SessionConfig{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating session manager. Err: %w", err)
	}
	accountService := account.NewService(auth.DefaultHasher, storage)
	tokenService := token.NewService(storage)

	mux := handlers.NewRouter(accountService, tokenService, sessions, tokenPrice, log)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     log,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
