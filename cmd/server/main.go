package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Baaaki/songshare/internal/broker"
	"github.com/Baaaki/songshare/internal/cache"
	"github.com/Baaaki/songshare/internal/config"
	"github.com/Baaaki/songshare/internal/database"
	"github.com/Baaaki/songshare/internal/handler"
	"github.com/Baaaki/songshare/internal/middleware"
	"github.com/Baaaki/songshare/internal/repository"
	"github.com/Baaaki/songshare/internal/service"
	"github.com/Baaaki/songshare/internal/storage"
	"github.com/Baaaki/songshare/internal/wal"
	"github.com/Baaaki/songshare/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	songCacheTTL        = 5 * time.Minute
	shutdownTimeout     = 10 * time.Second
	journalCompactEvery = time.Hour
)

func main() {
	cfg := config.Load()

	if err := logger.Init(!cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Log.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return err
	}

	backend, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}

	// Initialize the upload journal and clean up after an unclean stop
	journal, err := wal.NewWAL(cfg.UploadJournalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	songRepo := repository.NewSongRepository(db)
	playlistRepo := repository.NewPlaylistRepository(db)

	recovered, err := wal.Recover(ctx, journal, backend, songRepo.URLInUse)
	if err != nil {
		return err
	}
	if recovered > 0 {
		logger.Log.Warn("Resolved interrupted uploads", zap.Int("count", recovered))
	}
	go compactJournal(ctx, journal, journalCompactEvery)

	var (
		songCache  cache.SongCache = cache.NopCache{}
		limiter    middleware.Limiter
		songBroker broker.SongBroker
	)
	limiterConfig := middleware.RateLimiterConfig{
		MaxRequests: cfg.RateLimitMaxRequests,
		Window:      cfg.RateLimitWindow,
		BlockTime:   cfg.RateLimitBlockTime,
	}

	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		redisCache := cache.NewRedisSongCache(redisClient, songCacheTTL)
		defer redisCache.Close()

		songBroker = broker.NewRedisSongBroker(redisClient)
		defer songBroker.Close()

		songCache = redisCache
		limiter = middleware.NewRedisLimiter(redisClient, limiterConfig)
		logger.Log.Info("Redis connected")
	} else {
		local := middleware.NewLocalLimiter(limiterConfig)
		go local.RunSweeper(ctx, time.Minute)
		limiter = local
		logger.Log.Info("REDIS_URL not set, using in-process rate limiter and no song cache")
	}

	feed := service.NewSongFeed(16)
	defer feed.Close()

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry)
	songService := service.NewSongService(songRepo, backend, journal, songCache, feed)
	playlistService := service.NewPlaylistService(playlistRepo, songRepo, cfg.PlaylistOwnershipCheck)

	if songBroker != nil {
		if err := service.RelaySongs(ctx, songBroker, feed); err != nil {
			return err
		}
		songService.UseBroker(songBroker)
	}

	routerConfig := handler.RouterConfig{
		Auth:               handler.NewAuthHandler(authService),
		Songs:              handler.NewSongHandler(songService, cfg.MaxUploadBytes),
		Playlist:           handler.NewPlaylistHandler(playlistService),
		Feed:               handler.NewFeedHandler(feed, cfg.CORSAllowedOrigins),
		JWTSecret:          cfg.JWTSecret,
		UploadRequiresAuth: cfg.UploadRequiresAuth,
		IsProduction:       cfg.IsProduction(),
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		Limiter:            limiter,
	}
	if cfg.StorageBackend == config.StorageLocal {
		routerConfig.StaticRoot = cfg.UploadRoot
	}

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           handler.NewRouter(routerConfig),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting",
			zap.String("addr", cfg.ServerPort),
			zap.String("storage", backend.Name()),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Close feed subscribers first; hijacked connections are not drained.
	feed.Close()
	return srv.Shutdown(shutdownCtx)
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case config.StorageMinIO:
		return storage.NewObjectStorage(ctx, storage.ObjectStorageConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			PublicURL: cfg.MinIOPublicURL,
		})
	default:
		return storage.NewLocalStorage(cfg.UploadRoot, cfg.PublicBaseURL), nil
	}
}

// compactJournal drops resolved uploads from the journal periodically so it
// does not grow without bound between restarts.
func compactJournal(ctx context.Context, journal *wal.WAL, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := journal.Compact(); err != nil {
				logger.Log.Error("Upload journal compaction failed", zap.Error(err))
			}
		}
	}
}
