// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/service"
)

// Service interfaces for dependency injection and testing

// QuestServiceInterface defines the interface for quest catalog operations
type QuestServiceInterface interface {
	ListActiveQuests(ctx context.Context) ([]*models.Quest, error)
	ListQuests(ctx context.Context) ([]*models.Quest, error)
	GetUserQuests(ctx context.Context, wallet string) ([]*service.UserQuestView, error)
	CreateQuest(ctx context.Context, input *service.CreateQuestInput) (*models.Quest, error)
	SetQuestActive(ctx context.Context, id int64, active bool) error
}

// ClaimServiceInterface defines the interface for claim settlement
type ClaimServiceInterface interface {
	Claim(ctx context.Context, wallet string, questID int64) (*service.ClaimResult, error)
}

// LeaderboardServiceInterface defines the interface for leaderboard reads
type LeaderboardServiceInterface interface {
	Top(ctx context.Context, limit int) ([]*models.User, error)
}

// SeasonServiceInterface defines the interface for season management
type SeasonServiceInterface interface {
	ListSeasons(ctx context.Context) ([]*models.Season, error)
	ActiveSeason(ctx context.Context) (*models.Season, error)
	CreateSeason(ctx context.Context, season *models.Season) (*models.Season, error)
	ActivateSeason(ctx context.Context, id int64) (*models.Season, error)
	SeasonLeaderboard(ctx context.Context, seasonID int64, limit int) ([]*models.UserSeasonStats, error)
}

// ProtocolServiceInterface defines the interface for protocol management
type ProtocolServiceInterface interface {
	ListProtocols(ctx context.Context) ([]*models.Protocol, error)
	CreateProtocol(ctx context.Context, protocol *models.Protocol) (*models.Protocol, error)
}

// Server represents the HTTP API server.
type Server struct {
	router             *mux.Router
	httpServer         *http.Server
	questService       QuestServiceInterface
	claimService       ClaimServiceInterface
	leaderboardService LeaderboardServiceInterface
	seasonService      SeasonServiceInterface
	protocolService    ProtocolServiceInterface
	logger             *logging.Logger
	config             *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	AdminKey        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	questService QuestServiceInterface,
	claimService ClaimServiceInterface,
	leaderboardService LeaderboardServiceInterface,
	seasonService SeasonServiceInterface,
	protocolService ProtocolServiceInterface,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:             mux.NewRouter(),
		questService:       questService,
		claimService:       claimService,
		leaderboardService: leaderboardService,
		seasonService:      seasonService,
		protocolService:    protocolService,
		logger:             logger.WithField("component", "api"),
		config:             config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Quest endpoints
	api.HandleFunc("/quests", s.handleListQuests).Methods("GET")
	api.HandleFunc("/quests/{id}/claim", s.handleClaim).Methods("POST")

	// User endpoints
	api.HandleFunc("/users/{wallet}/quests", s.handleGetUserQuests).Methods("GET")

	// Leaderboard endpoints
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")

	// Season endpoints
	api.HandleFunc("/seasons", s.handleListSeasons).Methods("GET")
	api.HandleFunc("/seasons/active", s.handleActiveSeason).Methods("GET")
	api.HandleFunc("/seasons/{id}/leaderboard", s.handleSeasonLeaderboard).Methods("GET")

	// Protocol endpoints
	api.HandleFunc("/protocols", s.handleListProtocols).Methods("GET")

	// Admin endpoints behind the shared key
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(AdminAuthMiddleware(s.config.AdminKey))
	admin.HandleFunc("/quests", s.handleAdminListQuests).Methods("GET")
	admin.HandleFunc("/quests", s.handleAdminCreateQuest).Methods("POST")
	admin.HandleFunc("/quests/{id}/active", s.handleAdminSetQuestActive).Methods("PUT")
	admin.HandleFunc("/seasons", s.handleAdminCreateSeason).Methods("POST")
	admin.HandleFunc("/seasons/{id}/activate", s.handleAdminActivateSeason).Methods("POST")
	admin.HandleFunc("/protocols", s.handleAdminCreateProtocol).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "quest-engine",
	})
}

// Router exposes the configured router. Used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
