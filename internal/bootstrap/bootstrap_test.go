package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/usecases"
)

func TestNewWithoutIntegrations(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "aguasur-bootstrap-test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	cfg := config.DefaultApp()
	cfg.DBPath = filepath.Join(tempDir, "test.db")

	app, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to bootstrap: %v", err)
	}
	defer app.Close()

	if _, err := os.Stat(cfg.DBPath); err != nil {
		t.Errorf("Expected database file at %s: %v", cfg.DBPath, err)
	}

	_, err = app.UseCase.SubmitFreeTextReport(context.Background(), "no tenemos agua", "", "")
	if !errors.Is(err, usecases.ErrInterpreterUnavailable) {
		t.Errorf("Expected interpreter to be disabled, got %v", err)
	}
}

func TestNewEnablesInterpreterWithKey(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "aguasur-bootstrap-test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	cfg := config.DefaultApp()
	cfg.DBPath = filepath.Join(tempDir, "test.db")
	cfg.OpenAIAPIKey = "test-key"

	app, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to bootstrap: %v", err)
	}
	defer app.Close()

	// An empty message is rejected before any request is made.
	_, err = app.UseCase.SubmitFreeTextReport(context.Background(), "  ", "", "")
	if !errors.Is(err, entities.ErrInvalidInput) {
		t.Errorf("Expected invalid input from the enabled interpreter path, got %v", err)
	}
}
