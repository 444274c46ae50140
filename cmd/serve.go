package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"fakturierung-recurring/controllers"
	"fakturierung-recurring/logger"
	"fakturierung-recurring/middlewares"
	"fakturierung-recurring/routes"
	"fakturierung-recurring/scheduler"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the recurring scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("no-scheduler", false, "Do not run the in-process cron scheduler")
}

func runServe(cmd *cobra.Command, args []string) error {
	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()
	log := logger.WithComponent("server")

	if a.cfg.JWTSecret == "" {
		log.Warn().Msg("JWT secret not configured, authenticated routes will fail")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler,
		BodyLimit:    a.cfg.BodyLimitBytes,
	})

	app.Use(middlewares.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.AllowedOrigins,
		AllowCredentials: false, // using Bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        a.cfg.RateLimitMax,
		Expiration: a.cfg.RateLimitWindow,
	}))

	handler := controllers.NewRecurringHandler(a.generator, a.processor, logger.WithComponent("recurring"))
	routes.Register(app, handler, a.cfg.CronSecret)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sched *scheduler.Scheduler
	if a.cfg.RecurringCron != "" && !noScheduler {
		sched = scheduler.New(a.processor, a.cfg.RecurringCron, a.cfg.RecurringBatchTimeout, logger.WithComponent("scheduler"))
		if err := sched.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", a.cfg.Port).Msg("API server starting")
		return app.Listen(":" + a.cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if sched != nil {
			if err := sched.Stop(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("scheduler did not stop in time")
			}
		}
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
