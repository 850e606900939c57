package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/areassist/apiserver/config"
	"github.com/areassist/apiserver/internal/db"
	"github.com/areassist/apiserver/internal/handlers"
	"github.com/areassist/apiserver/internal/mq"
	"github.com/areassist/apiserver/internal/services"
	"github.com/areassist/apiserver/internal/storage"
	"github.com/areassist/apiserver/internal/store"
)

// Server wraps the HTTP server and its infrastructure handles.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	broker     *mq.MQ
}

// New wires the full application: database, Redis, object storage, the
// message broker, every repository, service, and route.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	uploads, err := newStorage(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := uploads.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	broker, err := newBroker(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	userRepo := store.NewUserRepository(dbConn)
	issueRepo := store.NewIssueRepository(dbConn)
	notificationRepo := store.NewNotificationRepository(dbConn)
	otpRepo := store.NewOTPRepository(dbConn)
	feedbackRepo := store.NewFeedbackRepository(dbConn)

	userService := services.NewUserService(userRepo)
	issueService := services.NewIssueService(issueRepo, uploads, broker)
	notificationService := services.NewNotificationService(notificationRepo)
	otpService := services.NewOTPService(otpRepo, broker, cfg.OTPTTL)
	identityService := services.NewIdentityService(
		userRepo,
		services.NewJWTVerifier(cfg.Identity.Secret, cfg.Identity.Issuer),
	)

	limiter := handlers.NewRateLimiter(rdb, cfg.IssueRateLimit)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Secret"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, identityService, otpService, cfg.SessionSecret)
	})
	router.Route("/issues", func(r chi.Router) {
		handlers.IssueRouter(r, issueService, userService, limiter, cfg.SessionSecret)
	})
	router.Route("/notifications", func(r chi.Router) {
		handlers.NotificationRouter(r, notificationService, cfg.SessionSecret)
	})
	router.Route("/volunteers", func(r chi.Router) {
		handlers.VolunteerRouter(r, issueService, userService, cfg.SessionSecret)
	})
	router.Route("/admin", func(r chi.Router) {
		handlers.AdminRouter(r, userService, issueService, services.NewFeedbackService(feedbackRepo), cfg.SessionSecret, cfg.AdminSecret)
	})
	router.Route("/feedback", func(r chi.Router) {
		handlers.FeedbackRouter(r, services.NewFeedbackService(feedbackRepo))
	})
	router.Route("/uploads", func(r chi.Router) {
		handlers.FilesRouter(r, uploads)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		redis:      rdb,
		broker:     broker,
	}, nil
}

func newStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendGCS:
		backend, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		return storage.NewStorage(backend), nil
	case config.StorageBackendMinio, "":
		backend, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return storage.NewStorage(backend), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newBroker(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.BrokerBackend {
	case config.BrokerBackendPubSub:
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return mq.New(backend), nil
	case config.BrokerBackendRabbitMQ, "":
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return mq.New(backend), nil
	default:
		return nil, fmt.Errorf("unknown broker backend %q", cfg.BrokerBackend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	return s.httpServer.Close()
}
