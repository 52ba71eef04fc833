package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"shipchat/internal/config"
	"shipchat/internal/domain"
	"shipchat/internal/security"
	"shipchat/internal/service"
	"shipchat/internal/ws"

	_ "shipchat/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Repositories bundles the store implementations the router wires into
// services; main fills it from whichever driver the config selects.
type Repositories struct {
	Users         domain.UserRepository
	Fezzes        domain.FezRepository
	Participants  domain.ParticipantRepository
	Posts         domain.PostRepository
	Blocks        domain.BlockRepository
	Notifications domain.NotificationRepository
	Reports       domain.ReportRepository
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(cfg *config.Config, repos Repositories, hub *ws.Hub, tokenSvc *security.TokenService, passwordHasher *security.PasswordHasher, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Services
	identSvc := service.NewIdentityService(repos.Users, repos.Blocks)
	notifySvc := service.NewNotificationService(repos.Notifications, logger)
	authSvc := service.NewAuthService(repos.Users, tokenSvc, passwordHasher)
	userSvc := service.NewUserService(repos.Users)
	fezSvc := service.NewFezService(repos.Fezzes, repos.Participants, repos.Posts, repos.Users, identSvc, notifySvc, hub, logger)
	postSvc := service.NewPostService(repos.Fezzes, repos.Participants, repos.Posts, identSvc, notifySvc, hub, logger, cfg.MaxFezPostsPerPage)
	reportSvc := service.NewReportService(repos.Reports, repos.Fezzes, repos.Posts)

	// The hub re-checks visibility at publish time through the fez service.
	hub.SetVisibility(fezSvc.CanViewLive, fezSvc.MaskForViewer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"shipchat API","version":"3.0","docs":"/docs"}`))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API routes
	r.Route("/api/v3", func(r chi.Router) {
		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc))
			r.Post("/login", handleLogin(authSvc))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokenSvc, repos.Users))

			r.Post("/auth/logout", handleLogout(authSvc))
			r.Get("/auth/me", handleMe())

			// Users
			r.Route("/users", func(r chi.Router) {
				r.Get("/match/{search}", handleMatchUsernames(userSvc))
				r.Get("/{userID}", handleGetUser(userSvc))
				r.Post("/{userID}/block", handleBlock(identSvc, true))
				r.Post("/{userID}/unblock", handleUnblock(identSvc, true))
				r.Post("/{userID}/mute", handleBlock(identSvc, false))
				r.Post("/{userID}/unmute", handleUnblock(identSvc, false))
			})

			// Notifications
			r.Get("/notification/fez", handleListNotifications(notifySvc))

			// Fezzes and posts
			r.Route("/fez", func(r chi.Router) {
				r.Get("/open", handleListOpenFezzes(fezSvc))
				r.Get("/joined", handleListJoinedFezzes(fezSvc))
				r.Get("/owner", handleListOwnedFezzes(fezSvc))
				r.Post("/create", handleCreateFez(fezSvc, postSvc))

				r.Delete("/post/{postID}", handleDeletePost(postSvc))
				r.Post("/post/{postID}/report", handleReportPost(reportSvc))

				r.Route("/{fezID}", func(r chi.Router) {
					r.Get("/", handleGetFez(fezSvc, postSvc))
					r.Post("/update", handleUpdateFez(fezSvc, postSvc))
					r.Post("/cancel", handleCancelFez(fezSvc, postSvc))
					r.Delete("/", handleDeleteFez(fezSvc))
					r.Post("/join", handleJoinFez(fezSvc, postSvc))
					r.Post("/unjoin", handleUnjoinFez(fezSvc))
					r.Post("/user/{userID}/add", handleAddMember(fezSvc, postSvc))
					r.Post("/user/{userID}/remove", handleRemoveMember(fezSvc, postSvc))
					r.Get("/posts", handleListPosts(postSvc))
					r.Post("/post", handleCreatePost(postSvc))
					r.Post("/report", handleReportFez(reportSvc))
				})
			})
		})
	})

	// WebSocket endpoint: token comes from the upgrade request itself.
	r.Get("/api/v3/fez/{fezID}/socket", ws.MakeHandler(hub, tokenSvc, repos.Users, cfg.CORSOrigins, logger))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors to HTTP statuses. ErrUnavailable renders
// exactly like ErrNotFound so callers cannot probe block relationships.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnavailable):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, domain.ErrAlreadyMember), errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrLocked):
		writeJSON(w, http.StatusLocked, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotMember),
		errors.Is(err, domain.ErrInvalidOperation),
		errors.Is(err, domain.ErrInvalidContent),
		errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
