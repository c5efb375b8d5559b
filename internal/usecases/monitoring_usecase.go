// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/abelzeko/aguasur/internal/alerts"
	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/coordination"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/integration"
	"github.com/abelzeko/aguasur/internal/integration/openai"
	"github.com/abelzeko/aguasur/internal/repository"
)

// Notifier delivers alerts to operators.
type Notifier interface {
	NotifyAlert(ctx context.Context, a alerts.Alert, c entities.Cistern) error
}

// QuoteSource supplies current provider prices.
type QuoteSource interface {
	FetchQuotes(ctx context.Context) (integration.Quotes, error)
}

// ErrInterpreterUnavailable is returned for free-text reports when no interpreter is configured.
var ErrInterpreterUnavailable = errors.New("free-text report interpretation is not configured")

// MonitoringUseCase ties the store to the engine: it evaluates cisterns, notifies operators, plans shared
// purchases and manages community reports.
type MonitoringUseCase struct {
	store       repository.Store
	cfg         config.Engine
	providers   []coordination.Provider
	quotes      QuoteSource
	interpreter openai.ReportInterpreter
	notifier    Notifier
	strategy    coordination.GroupingStrategy
	now         func() time.Time
}

// NewMonitoringUseCase creates a new monitoring use case. quotes, interpreter and notifier may be nil.
func NewMonitoringUseCase(store repository.Store, cfg config.App, quotes QuoteSource, interpreter openai.ReportInterpreter, notifier Notifier) *MonitoringUseCase {
	return &MonitoringUseCase{
		store:       store,
		cfg:         cfg.Engine,
		providers:   coordination.ProvidersFromConfig(cfg.Providers),
		quotes:      quotes,
		interpreter: interpreter,
		notifier:    notifier,
		strategy:    coordination.Greedy{},
		now:         time.Now,
	}
}

// Engine returns the engine configuration in use.
func (uc *MonitoringUseCase) Engine() config.Engine {
	return uc.cfg
}

// RegisterFamily stores a new, active household.
func (uc *MonitoringUseCase) RegisterFamily(ctx context.Context, f entities.Family) (entities.Family, error) {
	f.Active = true
	if f.RegisteredAt.IsZero() {
		f.RegisteredAt = uc.now()
	}
	return uc.store.CreateFamily(ctx, f)
}

// ArchiveFamily marks a household inactive. History stays intact.
func (uc *MonitoringUseCase) ArchiveFamily(ctx context.Context, id string) error {
	if err := uc.store.SetFamilyActive(ctx, id, false); err != nil {
		return err
	}
	log.Printf("Archived family %s", id)
	return nil
}

// RegisterCistern stores a new cistern. The owning family, when given, must exist.
func (uc *MonitoringUseCase) RegisterCistern(ctx context.Context, c entities.Cistern) (entities.Cistern, error) {
	if c.FamilyID != "" {
		if _, err := uc.store.GetFamily(ctx, c.FamilyID); err != nil {
			return entities.Cistern{}, fmt.Errorf("cistern owner: %w", err)
		}
	}
	now := uc.now()
	if c.Status == "" {
		c.Status = entities.CisternOperational
	}
	if c.InstalledAt.IsZero() {
		c.InstalledAt = now
	}
	if c.LevelUpdatedAt.IsZero() {
		c.LevelUpdatedAt = now
	}
	return uc.store.CreateCistern(ctx, c)
}

// SetCisternStatus records damage, maintenance or retirement of a cistern.
func (uc *MonitoringUseCase) SetCisternStatus(ctx context.Context, id string, status entities.CisternStatus) error {
	valid := false
	for _, s := range entities.CisternStatuses() {
		valid = valid || s == status
	}
	if !valid {
		return fmt.Errorf("%w: unknown cistern status %q", entities.ErrInvalidInput, status)
	}
	return uc.store.UpdateCisternStatus(ctx, id, status)
}

// FillRequest describes a water delivery.
type FillRequest struct {
	CisternID string
	Liters    float64
	Provider  string
	Cost      float64
	At        time.Time
	Notes     string

	// LevelBefore is the level read just before the delivery. When nil and the fill comes after the
	// latest reading, the level is projected from the consumption rate.
	LevelBefore *float64
}

// RecordFill stores a delivery to an operational cistern. The resulting level never exceeds capacity;
// liters that did not fit are reflected in LevelAfter - LevelBefore. A fill may not predate the
// cistern's latest level reading. LevelBefore is the observed level when given, the latest reading when
// the fill happens at the same instant, and the level projected to the fill time otherwise.
func (uc *MonitoringUseCase) RecordFill(ctx context.Context, req FillRequest) (entities.FillEvent, error) {
	c, err := uc.store.GetCistern(ctx, req.CisternID)
	if err != nil {
		return entities.FillEvent{}, err
	}
	if c.Status != entities.CisternOperational {
		return entities.FillEvent{}, fmt.Errorf("%w: cistern %s is %s and cannot be filled", entities.ErrInvalidInput, c.ID, c.Status)
	}
	if req.Liters <= 0 {
		return entities.FillEvent{}, fmt.Errorf("%w: fill must add a positive volume", entities.ErrInvalidInput)
	}

	at := req.At
	if at.IsZero() {
		at = uc.now()
	}
	if at.Before(c.LevelUpdatedAt) {
		return entities.FillEvent{}, fmt.Errorf("%w: fill at %s predates the level reading of cistern %s at %s",
			entities.ErrInvalidInput, at.Format(time.RFC3339), c.ID, c.LevelUpdatedAt.Format(time.RFC3339))
	}
	before, estimated := c.CurrentLevelLiters, false
	switch {
	case req.LevelBefore != nil:
		before = *req.LevelBefore
		if before < 0 || before > c.TotalCapacityLiters {
			return entities.FillEvent{}, fmt.Errorf("%w: level before %.0f outside [0, %.0f]", entities.ErrInvalidInput, before, c.TotalCapacityLiters)
		}
	case at.After(c.LevelUpdatedAt):
		pred, err := uc.predict(ctx, c, at)
		if err != nil {
			return entities.FillEvent{}, err
		}
		before, estimated = pred.CurrentLevelLiters, true
	}

	after := math.Min(before+req.Liters, c.TotalCapacityLiters)
	if after < before+req.Liters {
		log.Printf("Warning: fill of %.0f L overflows cistern %s, level capped at %.0f L", req.Liters, c.ID, after)
	}

	return uc.store.AppendFill(ctx, entities.FillEvent{
		CisternID:            c.ID,
		Timestamp:            at,
		LitersAdded:          req.Liters,
		Provider:             req.Provider,
		Cost:                 req.Cost,
		LevelBefore:          before,
		LevelAfter:           after,
		LevelBeforeEstimated: estimated,
		Notes:                req.Notes,
	}, repository.StampOf(c))
}

// RecordLevelReading stores a manual level reading taken at at (now when zero).
func (uc *MonitoringUseCase) RecordLevelReading(ctx context.Context, cisternID string, level float64, at time.Time) error {
	if at.IsZero() {
		at = uc.now()
	}
	return uc.store.UpdateCisternLevel(ctx, cisternID, level, at)
}

// FamilyByContact finds the active family whose contact matches, ignoring case and a leading "@".
func (uc *MonitoringUseCase) FamilyByContact(ctx context.Context, contact string) (entities.Family, error) {
	want := normalizeContact(contact)
	if want == "" {
		return entities.Family{}, fmt.Errorf("%w: empty contact", entities.ErrInvalidInput)
	}
	families, err := uc.store.ListFamilies(ctx)
	if err != nil {
		return entities.Family{}, err
	}
	for _, f := range families {
		if f.Active && normalizeContact(f.Contact) == want {
			return f, nil
		}
	}
	return entities.Family{}, fmt.Errorf("%w: no family with contact %s", entities.ErrNotFound, contact)
}

func normalizeContact(v string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v), "@"))
}

// ListCisterns returns every registered cistern.
func (uc *MonitoringUseCase) ListCisterns(ctx context.Context) ([]entities.Cistern, error) {
	return uc.store.ListCisterns(ctx)
}

// FamilyCistern returns the first non-retired cistern owned by the family.
func (uc *MonitoringUseCase) FamilyCistern(ctx context.Context, familyID string) (entities.Cistern, error) {
	all, err := uc.store.ListCisterns(ctx)
	if err != nil {
		return entities.Cistern{}, err
	}
	for _, c := range all {
		if c.FamilyID == familyID && c.Status != entities.CisternRetired {
			return c, nil
		}
	}
	return entities.Cistern{}, fmt.Errorf("%w: family %s has no cistern", entities.ErrNotFound, familyID)
}
