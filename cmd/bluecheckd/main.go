package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bluecheck-id/bluecheck/internal/cloudflare"
	"github.com/bluecheck-id/bluecheck/internal/health"
	"github.com/bluecheck-id/bluecheck/internal/social"
	"github.com/bluecheck-id/bluecheck/internal/verifier/handler"
	"github.com/bluecheck-id/bluecheck/internal/verifier/service"
	"github.com/bluecheck-id/bluecheck/internal/verifier/store"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bluecheckd",
	Short: "Handle verification and DNS binding service",
	Long: `bluecheckd lets a domain owner prove control of a social-media handle
through a one-time challenge and, once proof is accepted, provisions the
DNS TXT record binding that handle to the domain.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verification HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, _ := zap.NewProduction()
		defer logger.Sync() //nolint:errcheck
		return run(logger)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bluecheckd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bluecheckd", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("bluecheck")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.cors_origins", []string{"*"})
	viper.SetDefault("twitter.api_host", "https://api.twitterapi.io")
	viper.SetDefault("dns.base_domain", "bluecheck.id")
	viper.SetDefault("outbound.timeout", "10s")
	viper.SetDefault("health.check_interval", "5m")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// Collaborator secrets are required up front: a missing key must fail
	// at startup, not as a 500 on first use.
	var missing []string
	for _, key := range []string{"cloudflare.zone_id", "cloudflare.email", "cloudflare.api_key", "twitter.api_key"} {
		if viper.GetString(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	outboundTimeout, _ := time.ParseDuration(viper.GetString("outbound.timeout"))
	if outboundTimeout == 0 {
		outboundTimeout = 10 * time.Second
	}

	// ── Collaborators ────────────────────────────────────────────────────────
	twitterHost := viper.GetString("twitter.api_host")
	checker := social.NewClient(twitterHost, viper.GetString("twitter.api_key"), outboundTimeout, logger)
	checker.SetErrorRecord(func(op string) {
		handler.RecordProviderError("twitter", op)
	})

	provisioner, err := cloudflare.New(
		viper.GetString("cloudflare.api_key"),
		viper.GetString("cloudflare.email"),
		viper.GetString("cloudflare.zone_id"),
		viper.GetString("dns.base_domain"),
		logger,
	)
	if err != nil {
		return fmt.Errorf("cloudflare setup: %w", err)
	}

	// ── Verification flow ────────────────────────────────────────────────────
	pending := store.New()
	svc := service.New(pending, checker, provisioner, logger)
	svc.SetMetricsRecord(handler.RecordVerification)

	verificationHandler := handler.NewVerificationHandler(svc, logger)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	corsConfig := cors.Config{
		AllowOrigins:  corsOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	router.Use(requestID())
	router.Use(requestLogger(logger))
	router.Use(handler.PrometheusMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	verificationHandler.Register(router)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// ── Background: collaborator reachability probe ──────────────────────────
	checkInterval, _ := time.ParseDuration(viper.GetString("health.check_interval"))
	if checkInterval > 0 {
		probe := health.New(
			[]health.Target{
				{Name: "twitter", URL: twitterHost},
				{Name: "cloudflare", URL: "https://api.cloudflare.com/client/v4"},
			},
			health.Config{CheckInterval: checkInterval, ProbeTimeout: outboundTimeout},
			logger,
		)
		probe.SetStatusRecord(handler.SetCollaboratorUp)
		go probe.Start(quit)
	}

	httpPort := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("bluecheckd HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down bluecheckd...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("bluecheckd stopped")
	return nil
}

// requestID returns a Gin middleware that tags every request with an ID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}
