package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mission-control/board/internal/handlers"
	"mission-control/board/internal/middleware"
	"mission-control/board/internal/models"
	"mission-control/board/internal/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the board HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.IsProduction() {
				gin.SetMode(gin.ReleaseMode)
			}

			stop := make(chan struct{})
			defer close(stop)
			router := newRouter(a, stop)

			srv := &http.Server{
				Addr:         cfg.GetServerAddr(),
				Handler:      router,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("board API listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			log.Info().Msg("shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

func newRouter(a *app, stop <-chan struct{}) *gin.Engine {
	router := gin.New()
	monitor := monitoring.NewMonitor()

	router.Use(middleware.RecoveryWithLog())
	router.Use(middleware.RequestLogger())
	router.Use(monitor.Middleware())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	monitor.RegisterHealthCheck("storage", a.store.Ping)
	if a.pool != nil {
		monitor.RegisterHealthCheck("database", func(context.Context) error { return a.pool.Health() })
		monitor.RegisterStats("database", func() any { return a.pool.Stats() })
	}
	monitor.RegisterStats("storage", func() any {
		return map[string]any{
			"operations": a.backend.Metrics().Snapshot(),
			"error_rate": a.backend.Metrics().ErrorRate(),
			"breaker":    a.backend.Breaker().Stats(),
		}
	})
	monitor.Register(router)

	api := router.Group("/api")
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMin:  cfg.RateLimit.RequestsPerMin,
			BurstSize:       cfg.RateLimit.BurstSize,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		})
		go limiter.Run(stop)
		api.Use(limiter.Middleware())
	}
	if cfg.Auth.Enabled {
		api.Use(middleware.TeamAuth(middleware.AuthConfig{
			Secret:  cfg.Auth.JWTSecret,
			Issuer:  cfg.Auth.Issuer,
			Members: models.TeamMembers,
		}))
	}

	handlers.RegisterRoutes(api,
		handlers.NewTaskHandler(a.board),
		handlers.NewEpicHandler(a.board),
		handlers.NewTrashHandler(a.board, cfg.Trash.PurgeAfterDays),
	)
	return router
}
