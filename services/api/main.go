package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushub/internal/chat"
	"github.com/campushub/internal/config"
	"github.com/campushub/internal/directory"
	"github.com/campushub/internal/handler"
	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/middleware"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/presence"
	"github.com/campushub/internal/push"
	"github.com/campushub/internal/repository"
	"github.com/campushub/internal/startup"
	"github.com/campushub/internal/storage"
	memorystorage "github.com/campushub/internal/storage/memory"
	pgstorage "github.com/campushub/internal/storage/postgres"
	"github.com/campushub/internal/typing"
	"github.com/campushub/internal/ws"
	"github.com/campushub/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory presence (no external services required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	// Ephemeral stores: redis in production, in-process memory in -dev.
	var presenceStore storage.PresenceStore
	var typingStore storage.TypingStore
	if *dev {
		mem := memorystorage.New()
		presenceStore = mem
		typingStore = mem
		seedDevCourses(pool)
	} else {
		redisClient := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
		defer redisClient.Close()
		presenceStore = redisClient
		typingStore = redisClient
	}

	userRepo := repository.NewUserRepository(pool)
	courseRepo := repository.NewCourseRepository(pool)
	dir := directory.New(userRepo, courseRepo)

	messageStore := pgstorage.New(pool)
	typingTracker := typing.NewTracker(typingStore)
	chatSvc := chat.NewService(messageStore, typingTracker)
	presenceTracker := presence.NewTracker(presenceStore, 0)
	defer presenceTracker.Close()

	pushClient := push.NewClient(cfg.PushServiceURL)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(chatSvc, typingTracker, presenceTracker, courseRepo, cfg.MaxWSConnections, pushClient)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	tokens := middleware.NewTokens(cfg.JWTSecret)
	authH := handler.NewAuthHandler(userRepo, tokens)
	chatH := handler.NewChatHandler(chatSvc, dir)
	presenceH := handler.NewPresenceHandler(presenceTracker)
	courseH := handler.NewCourseHandler(courseRepo)
	wsH := handler.NewWSHandler(hub, dir, cfg.CORSAllowedOrigins)
	configH := handler.NewConfigHandler(cfg)
	pushH := handler.NewPushHandler(pushClient)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Never compress WebSocket responses: the wrapped ResponseWriter would not
	// implement http.Hijacker and the upgrade answers 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/config/client", configH.Client)
	r.Post("/api/auth/register", authH.Register)
	r.Post("/api/auth/login", authH.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(tokens))
		r.Get("/api/users/me", authH.Me)

		r.Get("/api/courses", courseH.List)
		r.Get("/api/courses/mine", courseH.MyCourses)
		r.Get("/api/courses/{code}", courseH.Get)
		r.Post("/api/courses/{code}/enrol", courseH.Enrol)
		r.Delete("/api/courses/{code}/enrol", courseH.Unenrol)

		r.Get("/api/channels", chatH.ListChannels)
		r.Get("/api/channels/{channel}/messages", chatH.Messages)
		r.Post("/api/channels/{channel}/messages", chatH.Send)
		r.Put("/api/channels/{channel}/messages/{messageID}", chatH.Edit)
		r.Delete("/api/channels/{channel}/messages/{messageID}", chatH.Delete)
		r.Post("/api/channels/{channel}/read", chatH.MarkRead)
		r.Post("/api/channels/{channel}/messages/{messageID}/reactions", chatH.AddReaction)
		r.Delete("/api/channels/{channel}/messages/{messageID}/reactions", chatH.RemoveReaction)
		r.Post("/api/channels/{channel}/messages/{messageID}/reactions/toggle", chatH.ToggleReaction)

		r.Get("/api/presence/count", presenceH.OnlineCount)
		r.Get("/api/presence/online", presenceH.OnlineUsers)

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)

		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// runMigrations applies every embedded .sql file in name order.
func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

// seedDevCourses inserts a small course catalogue so -dev starts with
// channels to join.
func seedDevCourses(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo := repository.NewCourseRepository(pool)
	courses := []model.Course{
		{Code: "CSM101", Title: "Introduction to Computer Science", Credits: 3, Semester: "1", Level: "100", Lecturer: "Dr. Mensah"},
		{Code: "CSM157", Title: "Introduction to Structured Programming", Credits: 3, Semester: "1", Level: "100", Lecturer: "Dr. Mensah"},
		{Code: "MATH161", Title: "Algebra and Trigonometry", Credits: 4, Semester: "1", Level: "100", Lecturer: "Prof. Owusu"},
		{Code: "CSM251", Title: "Data Structures", Credits: 3, Semester: "1", Level: "200", Lecturer: "Dr. Asante"},
	}
	for i := range courses {
		if err := repo.Create(ctx, &courses[i]); err != nil {
			logger.Errorf("seed course %s: %v", courses[i].Code, err)
		}
	}
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "campushub"
		password = "campushub_secret"
		database = "campushub"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
