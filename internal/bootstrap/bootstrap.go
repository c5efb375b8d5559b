// Package bootstrap wires the store, integrations and use case shared by the binaries.
package bootstrap

import (
	"fmt"
	"log"

	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/integration"
	"github.com/abelzeko/aguasur/internal/integration/openai"
	"github.com/abelzeko/aguasur/internal/repository"
	"github.com/abelzeko/aguasur/internal/usecases"
)

// App is a wired use case and the store it owns.
type App struct {
	Config  config.App
	Store   *repository.SQLiteStore
	UseCase *usecases.MonitoringUseCase
}

// New opens the store and builds the use case. The interpreter is enabled only when an OpenAI key is
// configured and the quote scraper only when a quotes URL is set. notifier may be nil.
func New(cfg config.App, notifier usecases.Notifier) (*App, error) {
	store, err := repository.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	var interpreter openai.ReportInterpreter
	if cfg.OpenAIAPIKey != "" {
		interpreter, err = openai.NewReportInterpreter(cfg.OpenAIAPIKey)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize report interpreter: %w", err)
		}
		log.Println("Free-text report interpretation enabled")
	}

	var quotes usecases.QuoteSource
	if cfg.QuotesURL != "" {
		quotes = integration.NewQuoteScraper(cfg.QuotesURL)
		log.Printf("Provider quotes will be scraped from %s", cfg.QuotesURL)
	} else if len(cfg.Providers) == 0 {
		log.Println("Warning: no quotes URL and no configured providers, coordination plans will fail")
	}

	return &App{
		Config:  cfg,
		Store:   store,
		UseCase: usecases.NewMonitoringUseCase(store, cfg, quotes, interpreter, notifier),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
