package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abelzeko/aguasur/internal/api"
	"github.com/abelzeko/aguasur/internal/bootstrap"
	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/usecases"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	// Configure logging
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Starting AguaSur Monitor...")

	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize notifier: %v", err)
	}

	app, err := bootstrap.New(cfg, notifier)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run a cycle immediately on startup
	runCycle(ctx, app.UseCase)

	c, err := schedule(ctx, cfg.CronSpec, app.UseCase)
	if err != nil {
		log.Fatalf("Failed to set up cron job: %v", err)
	}
	log.Printf("Monitoring cycle has been scheduled with %q", cfg.CronSpec)
	c.Start()

	server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsHandler()}
	go func() {
		log.Printf("Serving metrics on %s", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	<-c.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown failed: %v", err)
	}
}

// newNotifier returns a Telegram notifier when a token and operator chats are configured, and nil otherwise.
func newNotifier(cfg config.App) (usecases.Notifier, error) {
	if cfg.TelegramToken == "" || len(cfg.NotifyChatIDs) == 0 {
		log.Println("Warning: Telegram notifications disabled, alerts will only be stored")
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	return api.NewTelegramNotifier(bot, cfg.NotifyChatIDs), nil
}

func runCycle(ctx context.Context, uc *usecases.MonitoringUseCase) {
	if _, err := uc.RunMonitoringCycle(ctx, time.Now()); err != nil {
		log.Printf("Monitoring cycle failed: %v", err)
	}
}

// schedule registers the monitoring cycle with a cron scheduler without starting it.
func schedule(ctx context.Context, spec string, uc *usecases.MonitoringUseCase) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { runCycle(ctx, uc) }); err != nil {
		return nil, err
	}
	return c, nil
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
