package services

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepmate/backend/repository"
	ws "github.com/prepmate/backend/websocket"
)

// Server holds all server dependencies
type Server struct {
	config *Config

	repo   *repository.GORMRepository
	store  repository.SessionStore
	dbPool *pgxpool.Pool

	llmClient   *ChatClient
	fallbacks   *FallbackCatalog
	interviewer *Interviewer
	analyzer    *SessionAnalyzer
	stats       *StatsService
	speech      *SpeechService
	resume      *ResumeAnalyzer
	idle        *IdleSessionService

	authService      *AuthService
	authEndpoints    *AuthEndpoints
	guestEndpoints   *GuestEndpoints
	sessionEndpoints *SessionEndpoints
	statsEndpoints   *StatsEndpoints
	resumeEndpoints  *ResumeEndpoints
	websocketHandler *WebSocketHandler

	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetDatabase sets the database connections
func (s *Server) SetDatabase(repo *repository.GORMRepository, pool *pgxpool.Pool) {
	s.repo = repo
	s.dbPool = pool
}

// InitializeServices wires up the service graph
func (s *Server) InitializeServices() error {
	s.llmClient = NewChatClient(s.config.AI)
	s.fallbacks = NewFallbackCatalog()
	s.interviewer = NewInterviewer(s.llmClient, s.fallbacks)
	s.resume = NewResumeAnalyzer(s.llmClient, s.fallbacks)

	audioCache := NewAudioCache(s.config.AI.AudioCacheDir)
	s.speech = NewSpeechService(s.config.AI, audioCache)

	// Guest practice runs entirely in memory and stays available even when no
	// database is configured
	guestStore := repository.NewLocalSessionStore()
	s.guestEndpoints = NewGuestEndpoints(guestStore, NewSessionAnalyzer(s.llmClient, guestStore, s.fallbacks), s.interviewer)

	if s.repo != nil {
		s.store = repository.NewRemoteSessionStore(s.repo.DB())
		s.analyzer = NewSessionAnalyzer(s.llmClient, s.store, s.fallbacks)
		s.stats = NewStatsService(s.repo)
		s.idle = NewIdleSessionService(s.repo, s.store, s.analyzer, s.stats)
		s.websocketHandler = NewWebSocketHandler(s.repo, s.store, s.interviewer, s.speech, s.idle, s.fallbacks)

		if s.config.JWT.Secret != "" {
			s.authService = NewAuthService(s.repo, s.config.JWT.Secret)
			s.authEndpoints = NewAuthEndpoints(s.authService)
			s.sessionEndpoints = NewSessionEndpoints(s.repo, s.store, s.analyzer, s.interviewer, s.stats)
			s.statsEndpoints = NewStatsEndpoints(s.stats)
			s.resumeEndpoints = NewResumeEndpoints(s.resume, s.speech)
			slog.Info("Authentication service initialized")
		} else {
			slog.Warn("JWT secret not configured, account routes disabled")
		}
	} else {
		slog.Warn("Database not configured, serving guest practice routes only")
	}

	s.wsHub = ws.NewHub()
	go s.wsHub.Run()

	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)

		if s.guestEndpoints != nil {
			s.guestEndpoints.RegisterRoutes(r)
		}

		if s.authEndpoints != nil {
			r.Route("/auth", func(r chi.Router) {
				s.authEndpoints.RegisterPublicRoutes(r)

				r.Group(func(r chi.Router) {
					r.Use(s.authService.Middleware)
					s.authEndpoints.RegisterProtectedRoutes(r)
				})
			})
		}

		if s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				r.Get("/ws", s.websocketHandlerFunc)

				if s.sessionEndpoints != nil {
					s.sessionEndpoints.RegisterRoutes(r)
				}
				if s.statsEndpoints != nil {
					s.statsEndpoints.RegisterRoutes(r)
				}
				if s.resumeEndpoints != nil {
					s.resumeEndpoints.RegisterRoutes(r)
				}
			})
		}
	})

	return r
}

// Start starts the HTTP server and blocks until shutdown
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// If no allowed origins are configured, deny all requests for security
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	allowedOrigins := strings.Split(allowedOriginsStr, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}

	for _, allowed := range allowedOrigins {
		if allowed == origin {
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"

	if s.dbPool != nil {
		if err := s.dbPool.Ping(r.Context()); err != nil {
			dbStatus = "down"
			status = "degraded"
		} else {
			dbStatus = "up"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"` + status + `","database":"` + dbStatus + `"}`))
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"API v1","version":"1.0.0"}`))
}

func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		slog.Error("WebSocket connection failed - user not found in context")
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	session, err := s.repo.GetInterviewSessionWithDetails(r.Context(), sessionID, user.ID)
	if err != nil || session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.Status != "active" {
		http.Error(w, "Session is not active", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("WebSocket connection established", "user_id", user.ID, "session_id", sessionID)

	client := s.wsHub.RegisterClient(conn, user.ID, sessionID)
	client.MessageHandler = s.websocketHandler.HandleMessage

	go client.ReadPump()
	go client.WritePump()

	s.websocketHandler.HandleConnection(client)
}
