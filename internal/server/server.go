package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"bank-ledger/internal/config"
	"bank-ledger/internal/events"
	"bank-ledger/internal/handler"
	"bank-ledger/internal/lock"
	"bank-ledger/internal/repository"
	"bank-ledger/internal/seed"
	"bank-ledger/internal/service"
)

// Server represents the HTTP server
type Server struct {
	router    *mux.Router
	server    *http.Server
	store     repository.Store
	publisher events.Publisher
	redis     *redis.Client
	logger    *slog.Logger
	port      string
}

// Dependencies are the collaborators a Server is assembled from.
type Dependencies struct {
	Store     repository.Store
	Locker    lock.Locker
	Publisher events.Publisher
}

// NewServer opens every backing service named in cfg and wires the API on top.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := Dependencies{Store: store, Locker: lock.NewLocalLocker(), Publisher: events.NopPublisher{}}
	var redisClient *redis.Client

	if cfg.RedisAddr != "" {
		redisClient, err = lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			store.Close()
			return nil, err
		}
		deps.Locker = lock.NewRedisLocker(redisClient, cfg.LockTTL, logger)
		logger.Info("Using redis account locks", "addr", cfg.RedisAddr)
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			if redisClient != nil {
				redisClient.Close()
			}
			store.Close()
			return nil, err
		}
		deps.Publisher = publisher
	}

	s := New(deps, logger)
	s.redis = redisClient

	if cfg.SeedFile != "" {
		if err := s.Seed(ctx, cfg.SeedFile); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}

// New builds a Server around already-opened dependencies.
func New(deps Dependencies, logger *slog.Logger) *Server {
	accountService := service.NewAccountService(deps.Store, logger)
	transferService := service.NewTransferService(deps.Store, deps.Locker, deps.Publisher, logger)
	transactionService := service.NewTransactionService(deps.Store, logger)
	userService := service.NewUserService(deps.Store, logger)

	accountHandler := handler.NewAccountHandler(accountService)
	transferHandler := handler.NewTransferHandler(transferService)
	transactionHandler := handler.NewTransactionHandler(transactionService)
	userHandler := handler.NewUserHandler(userService)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))

	// Account routes
	router.HandleFunc("/accounts", accountHandler.ListAccounts).Methods("GET")
	router.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts/by-number/{account_number}", accountHandler.GetAccountByNumber).Methods("GET")
	router.HandleFunc("/accounts/{account_id}", accountHandler.GetAccount).Methods("GET")

	// Transfer and transaction routes
	router.HandleFunc("/transfers", transferHandler.Transfer).Methods("POST")
	router.HandleFunc("/transactions", transactionHandler.ListTransactions).Methods("GET")
	router.HandleFunc("/transactions/recent", transactionHandler.RecentTransactions).Methods("GET")
	router.HandleFunc("/transactions/{id}", transactionHandler.GetTransaction).Methods("GET")
	router.HandleFunc("/transactions/{id}", transactionHandler.DeleteTransaction).Methods("DELETE")

	// User routes
	router.HandleFunc("/users", userHandler.ListUsers).Methods("GET")
	router.HandleFunc("/users", userHandler.CreateUser).Methods("POST")
	router.HandleFunc("/users/exists", userHandler.CheckAvailability).Methods("GET")
	router.HandleFunc("/users/stats", userHandler.UserStats).Methods("GET")
	router.HandleFunc("/users/{id}", userHandler.GetUser).Methods("GET")
	router.HandleFunc("/users/{id}", userHandler.UpdateUser).Methods("PUT")
	router.HandleFunc("/users/{id}", userHandler.DeleteUser).Methods("DELETE")
	router.HandleFunc("/users/{id}/toggle-status", userHandler.ToggleUserStatus).Methods("POST")
	router.HandleFunc("/login", userHandler.Login).Methods("POST")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := deps.Store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "store unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	return &Server{
		router:    router,
		store:     deps.Store,
		publisher: deps.Publisher,
		logger:    logger,
	}
}

// Seed applies the YAML seed file through the service layer.
func (s *Server) Seed(ctx context.Context, path string) error {
	f, err := seed.LoadFile(path)
	if err != nil {
		return err
	}

	return seed.Apply(ctx, f, seed.Services{
		Users:        service.NewUserService(s.store, s.logger),
		Accounts:     service.NewAccountService(s.store, s.logger),
		Transactions: service.NewTransactionService(s.store, s.logger),
	}, s.logger)
}

// OpenStore connects the backend selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Info("Using in-memory store")
		return repository.NewMemoryStore(logger), nil

	case config.BackendPostgres:
		db, err := repository.OpenPostgres(ctx, cfg.GetDBConnectionString())
		if err != nil {
			return nil, err
		}
		logger.Info("Successfully connected to database")

		if cfg.RunMigrations {
			if err := repository.Migrate(ctx, db, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		return repository.NewSQLStore(db, logger), nil

	case config.BackendMySQL:
		return repository.OpenMySQL(cfg.MySQLDSN, logger)

	case config.BackendRemote:
		logger.Info("Using remote store", "base_url", cfg.RemoteBaseURL)
		return repository.NewRemoteStore(cfg.RemoteBaseURL, &http.Client{Timeout: cfg.RemoteTimeout}, logger), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response wrapper to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop drains in-flight requests, then releases the store, broker and lock
// connections.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.close()
	return err
}

func (s *Server) close() {
	if err := s.publisher.Close(); err != nil {
		s.logger.Error("Failed to close publisher", "error", err)
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close store", "error", err)
	}
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// NewLogger returns the JSON stdout logger, or a discarding one when the port
// is "0" (tests).
func NewLogger(cfg *config.Config) *slog.Logger {
	if cfg.ServerPort == "0" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// StartServer starts the server with the given configuration
func StartServer(ctx context.Context, cfg *config.Config) (*Server, string, error) {
	logger := NewLogger(cfg)

	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.close()
		return nil, "", err
	}

	return server, port, nil
}
