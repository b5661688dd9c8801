package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/edgekit/captchad/auth"
	"github.com/edgekit/captchad/captcha"
	"github.com/edgekit/captchad/config"
	"github.com/edgekit/captchad/controllers"
	"github.com/edgekit/captchad/middleware"
	"github.com/edgekit/captchad/store"
	"github.com/edgekit/captchad/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(gen *captcha.Generator, keys *auth.KeyStore, rdb *redis.Client) (*gin.Engine, error) {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "X-API-Key"},
		ExposeHeaders:   []string{"Content-Length", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	challenges := store.NewTokenStore(rdb, "captcha")
	tokens := store.NewTokenStore(rdb, "token")
	configs := store.NewTokenStore(rdb, "config")
	bgMeta := store.NewTokenStore(rdb, "background")
	verifier := store.NewVerifier(rdb, "token", cfg.MaxAttempts)
	backgrounds, err := store.NewBackgroundStore(bgMeta, cfg.UploadDir)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(cfg.TokenTTLSeconds) * time.Second
	captchaController := controllers.NewCaptchaController(gen, challenges, tokens, verifier, backgrounds, ttl)
	adminController := controllers.NewAdminController(configs, backgrounds, cfg.UploadMaxMB)

	api := r.Group("/api")
	api.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	public := api.Group("")
	public.Use(middleware.RateLimitByIP(cfg.IPRateLimitPerMinute))
	public.POST("/captcha/generate", captchaController.Generate)
	public.POST("/generate-token", captchaController.IssueToken)
	public.GET("/captcha/:id", captchaController.ImageByToken)
	public.GET("/captcha/:id/image", captchaController.Image)
	public.GET("/captcha/:id/audio", captchaController.Audio)
	public.GET("/audio/:id", captchaController.AudioByToken)
	public.POST("/validate", captchaController.Validate)

	privileged := api.Group("/v1")
	privileged.Use(middleware.APIKeyRequired(keys), middleware.RateLimitByAPIKey(cfg.KeyRateLimitPerMinute))
	privileged.POST("/configure", adminController.Configure)
	privileged.GET("/protected", adminController.Protected)

	api.POST("/upload-background", middleware.APIKeyRequired(keys), middleware.RateLimitByAPIKey(cfg.KeyRateLimitPerMinute), adminController.UploadBackground)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r, nil
}
