package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/triage"
	"github.com/abelzeko/aguasur/internal/usecases"
)

// run executes the CLI against dbPath and returns its output
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--db", dbPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dbPath string, args ...string) string {
	t.Helper()
	out, err := run(t, dbPath, args...)
	if err != nil {
		t.Fatalf("aguasur %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func testDB(t *testing.T) string {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "aguasur-cli-test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })
	return filepath.Join(tempDir, "test.db")
}

func TestRegisterFillAndStatus(t *testing.T) {
	db := testDB(t)
	t.Setenv("AGUASUR_CONFIG", "")

	mustRun(t, db, "--as-of", "2024-03-01T08:00:00Z", "family", "add", "--id", "f1", "--address", "Calle Larga 8", "--zone", "norte", "--occupants", "4")
	mustRun(t, db, "--as-of", "2024-03-01T09:00:00Z", "cistern", "add", "--id", "c1", "--location", "Calle Larga 8", "--capacity", "5000", "--family", "f1")

	out := mustRun(t, db, "--as-of", "2024-03-01T09:00:00Z", "fill", "c1", "1000", "--provider", "Aguas del Valle", "--cost", "80")
	var fill entities.FillEvent
	if err := json.Unmarshal([]byte(out), &fill); err != nil {
		t.Fatalf("Failed to decode fill: %v\n%s", err, out)
	}
	if fill.LevelBefore != 0 || fill.LevelAfter != 1000 {
		t.Errorf("Unexpected fill levels: %+v", fill)
	}

	mustRun(t, db, "--as-of", "2024-03-06T09:00:00Z", "level", "c1", "400")

	out = mustRun(t, db, "--as-of", "2024-03-06T09:00:00Z", "status", "c1")
	var view usecases.CisternView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("Failed to decode status: %v\n%s", err, out)
	}
	if view.Prediction.DailyConsumptionLitersPerDay != 120 {
		t.Errorf("Expected 120 L/day, got %.2f", view.Prediction.DailyConsumptionLitersPerDay)
	}
	if view.Alert == nil || view.Alert.Severity != entities.SeverityHigh {
		t.Errorf("Expected a high alert, got %+v", view.Alert)
	}
}

func TestReportLifecycle(t *testing.T) {
	db := testDB(t)
	t.Setenv("AGUASUR_CONFIG", "")

	out := mustRun(t, db, "report", "submit", "--type", "infrastructure", "--zone", "sur", "se rompió la tapa del estanque")
	var cls triage.Classification
	if err := json.Unmarshal([]byte(out), &cls); err != nil {
		t.Fatalf("Failed to decode report: %v\n%s", err, out)
	}
	id := cls.Report.ID
	if id == "" || cls.Report.Status != entities.ReportPending {
		t.Fatalf("Unexpected stored report: %+v", cls.Report)
	}

	mustRun(t, db, "report", "escalate", id, "high")
	mustRun(t, db, "report", "advance", id, "in_progress")
	out = mustRun(t, db, "report", "advance", id, "resolved", "--notes", "tapa reemplazada")

	var r entities.Report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("Failed to decode report: %v\n%s", err, out)
	}
	if !r.IsResolved() || r.ResolutionNotes != "tapa reemplazada" || r.Urgency != entities.SeverityHigh {
		t.Errorf("Unexpected resolved report: %+v", r)
	}

	if _, err := run(t, db, "report", "override", id, "low", "--reason", "duplicado"); err == nil {
		t.Error("Expected override of a resolved report to fail")
	}
}

func TestInvalidArguments(t *testing.T) {
	db := testDB(t)
	t.Setenv("AGUASUR_CONFIG", "")

	if _, err := run(t, db, "fill", "c1", "mucho"); err == nil {
		t.Error("Expected a non-numeric volume to fail")
	}
	if _, err := run(t, db, "--as-of", "ayer", "alerts"); err == nil {
		t.Error("Expected an invalid --as-of to fail")
	}
	if _, err := run(t, db, "status"); err == nil {
		t.Error("Expected status without a cistern to fail")
	}
}

func TestAlertsEmpty(t *testing.T) {
	db := testDB(t)
	t.Setenv("AGUASUR_CONFIG", "")

	out := mustRun(t, db, "alerts")
	if strings.TrimSpace(out) != "[]" && strings.TrimSpace(out) != "null" {
		t.Errorf("Expected no alerts, got %s", out)
	}
}
