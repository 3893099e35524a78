package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/domain"
	apphttp "chatrelay/internal/http"
	"chatrelay/internal/repository"
	"chatrelay/internal/repository/sqlite"
	"chatrelay/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	messageRepo := sqlite.NewMessageRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := messageRepo.Init(ctx); err != nil {
		logger.Fatalf("init message repository: %v", err)
	}

	if cfg.Auth.SeedPassword != "" {
		if err := seedUsers(ctx, userRepo, cfg.Auth.SeedPassword); err != nil {
			logger.Fatalf("seed users: %v", err)
		}
	}

	authService := service.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute,
		time.Duration(cfg.Auth.RefreshTTLHours)*time.Hour,
	)

	presence := chat.NewPresence()
	broker := chat.NewBroker(logger)
	router := chat.NewRouter(messageRepo, userRepo, broker, logger, cfg.Chat.HistoryLimit)
	hub := chat.NewHub(authService, presence, broker, router, logger, cfg.Chat.SendBuffer)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	handler := apphttp.NewHandler(authService, hub, logger)
	handler.RegisterRoutes(engine)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if err := hub.Shutdown(10 * time.Second); err != nil {
		logger.Warnf("hub shutdown: %v", err)
	}

	logger.Info("bye")
}

func seedUsers(ctx context.Context, users repository.UserRepository, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return users.Seed(ctx, []domain.User{
		{Name: "Super Admin", Email: "admin@example.com", PasswordHash: string(hash), Role: domain.RoleAdmin},
		{Name: "John Doe", Email: "user1@example.com", PasswordHash: string(hash), Role: domain.RoleUser},
		{Name: "Jane Smith", Email: "user2@example.com", PasswordHash: string(hash), Role: domain.RoleUser},
	})
}
