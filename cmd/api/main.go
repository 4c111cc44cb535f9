package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/gatherly/server/internal/auth"
	"github.com/gatherly/server/internal/config"
	"github.com/gatherly/server/internal/db"
	httphandler "github.com/gatherly/server/internal/http"
	"github.com/gatherly/server/internal/http/handlers"
	"github.com/gatherly/server/internal/identity"
	"github.com/gatherly/server/internal/match"
	"github.com/gatherly/server/internal/repo"
	"github.com/gatherly/server/internal/social"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var (
		directory   identity.Directory
		otpRepo     repo.OtpRepo
		refreshRepo repo.RefreshRepo
		friendRepo  repo.FriendRepo
		intRepo     repo.InterestRepo
		matchRepo   repo.MatchRepo
	)

	if cfg.DatabaseURL == "" {
		// Dev mode without a database: everything in memory.
		log.Println("DEV_MODE with no DATABASE_URL: using in-memory stores")
		directory = identity.NewMemoryDirectory()
		otpRepo = repo.NewMemoryOtpRepo()
		refreshRepo = repo.NewMemoryRefreshRepo()
		friendRepo = repo.NewMemoryFriendRepo()
		intRepo = repo.NewMemoryInterestRepo()
		matchRepo = repo.NewMemoryMatchRepo()
	} else {
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		if err := runMigrations(database); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		directory = identity.NewPgDirectory(database)
		otpRepo = repo.NewOtpRepo(database)
		refreshRepo = repo.NewRefreshRepo(database)
		friendRepo = repo.NewFriendRepo(database)
		intRepo = repo.NewInterestRepo(database)
		matchRepo = repo.NewMatchRepo(database)
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)
	tokenService := auth.NewService(jwtService, refreshRepo, cfg.RefreshTokenTTL)
	challengeService := auth.NewChallengeService(otpRepo, auth.LogNotifier{}, cfg.OTPSalt, cfg.DevMode)
	friendService := social.NewService(friendRepo)

	// The real messaging gateway is wired here in production; the stub keeps
	// development and single-node deployments self-contained.
	engine := match.NewEngine(intRepo, matchRepo, match.StubProvisioner{}, cfg.MatchThreshold, cfg.ProvisionTimeout)

	retrierCtx, stopRetrier := context.WithCancel(ctx)
	defer stopRetrier()
	retrier := match.NewRetrier(engine, cfg.RetryInterval, 10)
	go retrier.Run(retrierCtx)

	authHandler := handlers.NewAuthHandler(challengeService, tokenService, directory)
	friendsHandler := handlers.NewFriendsHandler(friendService)
	eventsHandler := handlers.NewEventsHandler(engine)

	router := httphandler.NewRouter(authHandler, friendsHandler, eventsHandler, tokenService)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopRetrier()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose.
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
