package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"actpath-backend/cmd/app/internal/controller"
	"actpath-backend/internal/config"
	"actpath-backend/internal/db"
	"actpath-backend/internal/repository"
	"actpath-backend/internal/service"
	"actpath-backend/pkg/middleware"
	"actpath-backend/utilities"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.APIConfig) error {
	printStartUpBanner()

	if loc, err := time.LoadLocation(cfg.Context.TimeZone); err != nil {
		log.Warn().Err(err).Str("time_zone", cfg.Context.TimeZone).Msg("unknown time zone, keeping local")
	} else {
		time.Local = loc
	}

	// Initialize DB using the loaded config.
	gdb, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	if cfg.DB.Initialize {
		if err := db.Migrate(gdb); err != nil {
			return err
		}
	}

	issuer, err := newTokenIssuer(cfg.Authentication)
	if err != nil {
		return err
	}

	bus := utilities.NewEventBus()
	subscribeAuditLog(bus)
	defer bus.Wait()

	// Create repositories.
	userRepo := repository.NewUserRepository(gdb)
	templateRepo := repository.NewTemplateRepository(gdb)
	progressRepo := repository.NewProgressRepository(gdb)

	// Create services.
	services := controller.Services{
		Auth: service.NewAuthService(userRepo, issuer, service.AuthOptions{
			MFATTL:         time.Duration(cfg.Authentication.MFACodeMinutes) * time.Minute,
			ExposeMFACode:  cfg.Authentication.ExposeMFACode,
			MaxMFAAttempts: cfg.Authentication.MaxMFAAttempts,
		}),
		Profile: service.NewProfileService(userRepo),
		Progress: service.NewProgressService(progressRepo, templateRepo,
			service.WithSessionCount(cfg.Curriculum.SessionCount),
			service.WithEventBus(bus),
		),
		Template: service.NewTemplateService(templateRepo),
	}

	// Initialize Gin router.
	if !log.Debug().Enabled() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	if cfg.RequestDump {
		r.Use(middleware.RequestDumpMiddleware())
	}

	// CORS configuration.
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	limiter := middleware.NewIPRateLimiter(cfg.Authentication.RateLimit.PerMinute, cfg.Authentication.RateLimit.Burst)
	controller.RegisterRoutes(r, cfg.Context.Path, services, issuer, limiter, sqlDB)

	// Start server on the host and port specified in the XML config.
	addr := fmt.Sprintf("%s:%d", cfg.Context.Host, cfg.Context.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, cfg.Context.MaxConnections)

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("base_path", cfg.Context.Path).Msg("api listening")
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newTokenIssuer falls back to random per-process secrets when none are
// configured. Tokens then stop validating after a restart.
func newTokenIssuer(a config.AuthenticationConfig) (*utilities.TokenIssuer, error) {
	access, refresh := a.AccessSecret, a.RefreshSecret
	if access == "" || refresh == "" {
		log.Warn().Msg("jwt secrets not configured, generating ephemeral secrets")
		var err error
		if access, err = randomSecret(); err != nil {
			return nil, err
		}
		if refresh, err = randomSecret(); err != nil {
			return nil, err
		}
	}
	return utilities.NewTokenIssuer(access, refresh,
		time.Duration(a.AccessTokenMinutes)*time.Minute,
		time.Duration(a.RefreshTokenHours)*time.Hour,
	)
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// subscribeAuditLog records tracker events in the log.
func subscribeAuditLog(bus *utilities.EventBus) {
	bus.Subscribe(service.EventSessionRecorded, func(data interface{}) {
		ev, ok := data.(service.SessionRecordedEvent)
		if !ok {
			return
		}
		log.Info().
			Uint("client_id", ev.ClientID).
			Int("session", ev.SessionNumber).
			Str("status", string(ev.Status)).
			Bool("advanced", ev.Advanced).
			Int("next_session", ev.NextSession).
			Msg("audit: session recorded")
	})
	bus.Subscribe(service.EventAssessmentRecorded, func(data interface{}) {
		ev, ok := data.(service.AssessmentRecordedEvent)
		if !ok {
			return
		}
		log.Info().
			Uint("client_id", ev.ClientID).
			Str("record_id", ev.HistoryRecordID).
			Str("test_type", ev.TestType).
			Str("family", ev.Family).
			Float64("total_score", ev.TotalScore).
			Msg("audit: assessment recorded")
	})
}

func printStartUpBanner() {
	myFigure := figure.NewFigure("ACT PATH", "", true)
	myFigure.Print()

	fmt.Println()
	fmt.Println("======================================================")
	fmt.Printf("ACT PATH API (v%s)\n\n", version)
}
