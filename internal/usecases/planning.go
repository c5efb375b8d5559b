package usecases

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/abelzeko/aguasur/internal/alerts"
	"github.com/abelzeko/aguasur/internal/coordination"
	"github.com/abelzeko/aguasur/internal/dashboard"
	"github.com/abelzeko/aguasur/internal/metrics"
)

// PlanResult is a coordination plan with the origin of the prices it used.
type PlanResult struct {
	Plan            coordination.Plan `json:"plan"`
	QuoteSource     string            `json:"quote_source"` // "scraped" or "configured"
	QuotesUpdatedAt time.Time         `json:"quotes_updated_at,omitempty"`
}

// currentProviders returns scraped quotes when available and the configured fallback otherwise.
func (uc *MonitoringUseCase) currentProviders(ctx context.Context) ([]coordination.Provider, string, time.Time) {
	if uc.quotes != nil {
		q, err := uc.quotes.FetchQuotes(ctx)
		if err == nil && len(q.Providers) > 0 {
			return q.Providers, "scraped", q.UpdatedAt
		}
		log.Printf("Warning: using configured provider quotes: %v", err)
	}
	return uc.providers, "configured", time.Time{}
}

// PlanCoordination groups cisterns with short autonomy into shared truck purchases.
func (uc *MonitoringUseCase) PlanCoordination(ctx context.Context, asOf time.Time) (PlanResult, error) {
	s, err := uc.loadSnapshot(ctx)
	if err != nil {
		return PlanResult{}, err
	}
	ev := uc.evaluate(s, asOf)
	return uc.plan(ctx, s, ev)
}

func (uc *MonitoringUseCase) plan(ctx context.Context, s snapshot, ev Evaluation) (PlanResult, error) {
	providers, source, updated := uc.currentProviders(ctx)
	candidates := coordination.BuildCandidates(s.cisterns, s.families, ev.Predictions, ev.Alerts, s.reports)

	plan, err := uc.strategy.Plan(uc.cfg, candidates, providers)
	if err != nil {
		return PlanResult{}, fmt.Errorf("failed to plan coordination: %w", err)
	}
	metrics.SetCoordinationSavings(plan.Savings)
	log.Printf("Coordination plan: %d groups, %d excluded, savings %.2f", len(plan.Groups), len(plan.Excluded), plan.Savings)

	return PlanResult{Plan: plan, QuoteSource: source, QuotesUpdatedAt: updated}, nil
}

// Dashboard summarizes the community state at asOf. Coordination savings come from the plan that would
// be proposed now; a planning failure leaves them at zero.
func (uc *MonitoringUseCase) Dashboard(ctx context.Context, asOf time.Time) (dashboard.Summary, error) {
	s, err := uc.loadSnapshot(ctx)
	if err != nil {
		return dashboard.Summary{}, err
	}
	ev := uc.evaluate(s, asOf)

	window := time.Duration(uc.cfg.EarlyWarningWindowDays * float64(24*time.Hour))
	history, err := uc.store.ListAlertsSince(ctx, asOf.Add(-window))
	if err != nil {
		return dashboard.Summary{}, err
	}
	if history == nil {
		history = []alerts.Alert{}
	}

	snap := dashboard.Snapshot{
		AsOf:         asOf,
		Families:     s.families,
		Cisterns:     s.cisterns,
		Fills:        s.fills,
		Reports:      s.reports,
		Predictions:  ev.Predictions,
		Alerts:       ev.Alerts,
		AlertHistory: history,
	}
	if res, err := uc.plan(ctx, s, ev); err != nil {
		log.Printf("Warning: dashboard without coordination savings: %v", err)
	} else {
		snap.Groups = res.Plan.Groups
	}
	return dashboard.Summarize(uc.cfg, snap), nil
}

// sortAlerts orders by severity desc, then autonomy asc, then cistern ID.
func sortAlerts(as []alerts.Alert) {
	sort.SliceStable(as, func(i, j int) bool {
		if as[i].Severity != as[j].Severity {
			return as[i].Severity > as[j].Severity
		}
		if as[i].AutonomyDays != as[j].AutonomyDays {
			return as[i].AutonomyDays < as[j].AutonomyDays
		}
		return as[i].CisternID < as[j].CisternID
	})
}
