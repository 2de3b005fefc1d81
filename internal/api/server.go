// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/trivia-pay/internal/logging"
	"github.com/trivia-pay/internal/metrics"
	"github.com/trivia-pay/internal/service"
	"github.com/trivia-pay/internal/store"
)

// Services bundles the application services exposed over HTTP
type Services struct {
	Session       *service.SessionService
	Bills         *service.BillService
	Goals         *service.GoalService
	Payments      *service.PaymentService
	Notifications *service.NotificationService
	Analytics     *service.AnalyticsService
	Store         *store.Controller
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	services   *Services
	metrics    *metrics.Metrics
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// RequestsPerSecond and Burst bound each client's request rate
	RequestsPerSecond int
	Burst             int
	// QRSize is the edge length of rendered QR codes in pixels
	QRSize int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services *Services, m *metrics.Metrics) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		metrics:  m,
		config:   config,
		logger:   logging.WithComponent("api"),
	}

	s.setupRouter()

	return s
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Order matters: logging sees the final status, recovery wraps handlers
	s.router.Use(LoggingMiddleware(s.logger, s.metrics))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		// CORS wraps the router so preflights reach it before method matching
		Handler:      CORSMiddleware(s.router),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Session and settings
	api.HandleFunc("/session", s.handleGetSession).Methods("GET")
	api.HandleFunc("/session/connect", s.handleConnect).Methods("POST")
	api.HandleFunc("/session/disconnect", s.handleDisconnect).Methods("POST")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")

	// Ledger data
	api.HandleFunc("/transactions", s.handleGetTransactions).Methods("GET")
	api.HandleFunc("/app-state", s.handleGetAppState).Methods("GET")
	api.HandleFunc("/dashboard", s.handleGetDashboard).Methods("GET")
	api.HandleFunc("/analytics", s.handleGetAnalytics).Methods("GET")
	api.HandleFunc("/analytics/history", s.handleGetHistory).Methods("GET")

	// Bills
	api.HandleFunc("/bills", s.handleListBills).Methods("GET")
	api.HandleFunc("/bills", s.handleCreateBill).Methods("POST")
	api.HandleFunc("/bills/{id}", s.handleGetBill).Methods("GET")
	api.HandleFunc("/bills/{id}", s.handleDeleteBill).Methods("DELETE")
	api.HandleFunc("/bills/{id}/payees/{payeeId}/paid", s.handleMarkPaid).Methods("POST")
	api.HandleFunc("/bills/{id}/payees/{payeeId}/balance", s.handlePayeeBalance).Methods("GET")
	api.HandleFunc("/bills/{id}/payees/{payeeId}/request", s.handlePayeeRequest).Methods("GET")

	// Notifications
	api.HandleFunc("/notifications", s.handleListNotifications).Methods("GET")
	api.HandleFunc("/notifications", s.handleDismissAll).Methods("DELETE")
	api.HandleFunc("/notifications/read", s.handleMarkAllRead).Methods("POST")
	api.HandleFunc("/notifications/{id}", s.handleDismissNotification).Methods("DELETE")
	api.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods("POST")
	api.HandleFunc("/notifications/{id}/request", s.handleNotificationRequest).Methods("GET")

	// Goals
	api.HandleFunc("/goals", s.handleListGoals).Methods("GET")
	api.HandleFunc("/goals", s.handleCreateGoal).Methods("POST")
	api.HandleFunc("/goals/{id}", s.handleDeleteGoal).Methods("DELETE")
	api.HandleFunc("/goals/{id}/deposit", s.handleGoalDeposit).Methods("POST")

	// Payments
	api.HandleFunc("/payments", s.handleSendPayment).Methods("POST")
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/receive", s.handleReceive).Methods("GET")
	api.HandleFunc("/receive/qr", s.handleReceiveQR).Methods("GET")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "trivia-pay",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
