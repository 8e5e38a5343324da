package handler

import (
	"net/http"
	"path/filepath"

	"github.com/Baaaki/songshare/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Auth     *AuthHandler
	Songs    *SongHandler
	Playlist *PlaylistHandler
	Feed     *FeedHandler

	JWTSecret          string
	UploadRequiresAuth bool
	IsProduction       bool
	AllowedOrigins     []string

	// Limiter guards the auth and upload routes; nil disables limiting.
	Limiter middleware.Limiter

	// StaticRoot serves /uploads and /covers from disk when set.
	StaticRoot string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(),
		middleware.SecurityHeadersMiddleware(),
		middleware.HSTSMiddleware(cfg.IsProduction),
		cors.New(corsConfig(cfg.AllowedOrigins)),
	)

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	requireAuth := middleware.AuthMiddleware(cfg.JWTSecret)
	uploadAuth := middleware.OptionalAuth(cfg.JWTSecret)
	if cfg.UploadRequiresAuth {
		uploadAuth = requireAuth
	}

	var limited []gin.HandlerFunc
	if cfg.Limiter != nil {
		limited = append(limited, middleware.RateLimit(cfg.Limiter))
	}
	withLimit := func(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, limited...), handlers...)
	}

	auth := router.Group("/auth", limited...)
	{
		auth.POST("/register", cfg.Auth.Register)
		auth.POST("/login", cfg.Auth.Login)
	}

	songs := router.Group("/songs")
	{
		songs.GET("", cfg.Songs.List)
		songs.GET("/feed", cfg.Feed.Subscribe)
		songs.POST("", withLimit(requireAuth, cfg.Songs.Create)...)
		songs.POST("/upload", withLimit(uploadAuth, cfg.Songs.Upload)...)
	}

	playlists := router.Group("/playlists", requireAuth)
	{
		playlists.GET("", cfg.Playlist.List)
		playlists.POST("", cfg.Playlist.Create)
		playlists.GET("/:id/songs", cfg.Playlist.Songs)
		playlists.POST("/:id/songs", cfg.Playlist.AddSong)
		playlists.DELETE("/:id/songs/:songId", cfg.Playlist.RemoveSong)
	}

	if cfg.StaticRoot != "" {
		router.Static("/uploads", filepath.Join(cfg.StaticRoot, "uploads"))
		router.Static("/covers", filepath.Join(cfg.StaticRoot, "covers"))
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowHeaders = append(config.AllowHeaders, "Authorization", middleware.HeaderRequestID)
	config.ExposeHeaders = []string{middleware.HeaderRequestID}

	for _, origin := range origins {
		if origin == "*" {
			config.AllowAllOrigins = true
			return config
		}
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = origins
	return config
}
