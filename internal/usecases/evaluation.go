package usecases

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/abelzeko/aguasur/internal/alerts"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/metrics"
	"github.com/abelzeko/aguasur/internal/predictor"
	"golang.org/x/sync/errgroup"
)

// snapshot is one consistent read of everything an evaluation needs.
type snapshot struct {
	families []entities.Family
	cisterns []entities.Cistern
	fills    []entities.FillEvent
	reports  []entities.Report
}

func (uc *MonitoringUseCase) loadSnapshot(ctx context.Context) (snapshot, error) {
	var s snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		s.families, err = uc.store.ListFamilies(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		s.cisterns, err = uc.store.ListCisterns(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		s.fills, err = uc.store.ListFills(ctx, "")
		return err
	})
	g.Go(func() error {
		var err error
		s.reports, err = uc.store.ListReports(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return s, nil
}

// EvaluationFailure records a cistern the engine could not evaluate.
type EvaluationFailure struct {
	CisternID string
	Err       error
}

// Evaluation is the outcome of predicting and classifying every monitored cistern.
type Evaluation struct {
	AsOf        time.Time
	Predictions []predictor.Prediction
	Alerts      []alerts.Alert
	Failures    []EvaluationFailure
}

// monitored reports whether a cistern takes part in evaluations.
func monitored(c entities.Cistern) bool {
	return c.Status != entities.CisternRetired && c.Status != entities.CisternInactive
}

func (uc *MonitoringUseCase) evaluate(s snapshot, asOf time.Time) Evaluation {
	families := make(map[string]entities.Family, len(s.families))
	for _, f := range s.families {
		families[f.ID] = f
	}
	history := make(map[string][]entities.FillEvent)
	for _, f := range s.fills {
		history[f.CisternID] = append(history[f.CisternID], f)
	}

	var cisterns []entities.Cistern
	var inputs []predictor.Input
	for _, c := range s.cisterns {
		if !monitored(c) {
			continue
		}
		in := predictor.Input{Cistern: c, History: history[c.ID]}
		if f, ok := families[c.FamilyID]; ok {
			in.Family = &f
		}
		cisterns = append(cisterns, c)
		inputs = append(inputs, in)
	}

	ev := Evaluation{AsOf: asOf}
	for i, res := range predictor.PredictAll(uc.cfg, inputs, asOf) {
		c := cisterns[i]
		if res.Err != nil {
			ev.Failures = append(ev.Failures, EvaluationFailure{CisternID: c.ID, Err: res.Err})
			continue
		}
		ev.Predictions = append(ev.Predictions, res.Prediction)

		a, ok, err := alerts.Evaluate(uc.cfg, c, res.Prediction, s.reports)
		if err != nil {
			ev.Failures = append(ev.Failures, EvaluationFailure{CisternID: c.ID, Err: err})
			continue
		}
		if ok {
			ev.Alerts = append(ev.Alerts, a)
		}
	}
	for _, f := range ev.Failures {
		log.Printf("Warning: could not evaluate cistern %s: %v", f.CisternID, f.Err)
	}
	return ev
}

// EvaluateCisterns predicts and classifies every monitored cistern and stores the alerts. Cisterns whose
// previous alert no longer holds get a severity-none record so that the next alert counts as new.
func (uc *MonitoringUseCase) EvaluateCisterns(ctx context.Context, asOf time.Time) (Evaluation, error) {
	ev, _, err := uc.evaluateAndStore(ctx, asOf)
	return ev, err
}

// recordEvaluations counts the stored outcome of every evaluated cistern.
func recordEvaluations(ev Evaluation, alerted map[string]bool) {
	for _, p := range ev.Predictions {
		metrics.RecordEvaluation(alerted[p.CisternID], nil)
	}
	for _, f := range ev.Failures {
		metrics.RecordEvaluation(false, f.Err)
	}
}

func (uc *MonitoringUseCase) evaluateAndStore(ctx context.Context, asOf time.Time) (Evaluation, map[string]alerts.Alert, error) {
	s, err := uc.loadSnapshot(ctx)
	if err != nil {
		return Evaluation{}, nil, err
	}
	previous, err := uc.latestAlerts(ctx)
	if err != nil {
		return Evaluation{}, nil, err
	}

	ev := uc.evaluate(s, asOf)

	toSave := append([]alerts.Alert(nil), ev.Alerts...)
	alerted := make(map[string]bool, len(ev.Alerts))
	for _, a := range ev.Alerts {
		alerted[a.CisternID] = true
		metrics.RecordAlert(a.Severity)
	}
	recordEvaluations(ev, alerted)
	for _, p := range ev.Predictions {
		if prev, ok := previous[p.CisternID]; ok && !alerted[p.CisternID] && prev.Severity > entities.SeverityNone {
			toSave = append(toSave, alerts.Alert{
				CisternID:     p.CisternID,
				FamilyID:      prev.FamilyID,
				Severity:      entities.SeverityNone,
				LevelFraction: p.LevelFraction,
				AutonomyDays:  p.EstimatedAutonomyDays,
				Confidence:    p.Confidence,
				IssuedAt:      asOf,
			})
		}
	}
	if err := uc.store.SaveAlerts(ctx, toSave); err != nil {
		return Evaluation{}, nil, err
	}

	log.Printf("Evaluated %d cisterns: %d alerts, %d failures", len(ev.Predictions), len(ev.Alerts), len(ev.Failures))
	return ev, previous, nil
}

func (uc *MonitoringUseCase) latestAlerts(ctx context.Context) (map[string]alerts.Alert, error) {
	latest, err := uc.store.LatestAlerts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]alerts.Alert, len(latest))
	for _, a := range latest {
		out[a.CisternID] = a
	}
	return out, nil
}

// CycleReport summarizes one monitoring cycle.
type CycleReport struct {
	Evaluation Evaluation
	Notified   int
	Failed     int
}

// RunMonitoringCycle evaluates all cisterns and notifies operators of alerts that are new or more severe
// than the last stored alert for the same cistern. Delivery failures are logged and counted, not returned.
func (uc *MonitoringUseCase) RunMonitoringCycle(ctx context.Context, asOf time.Time) (CycleReport, error) {
	start := time.Now()
	defer func() { metrics.ObserveCycle(time.Since(start)) }()

	log.Println("Starting monitoring cycle...")
	ev, previous, err := uc.evaluateAndStore(ctx, asOf)
	if err != nil {
		return CycleReport{}, err
	}

	report := CycleReport{Evaluation: ev}
	if uc.notifier == nil {
		return report, nil
	}

	cisterns := make(map[string]entities.Cistern)
	if all, err := uc.store.ListCisterns(ctx); err == nil {
		for _, c := range all {
			cisterns[c.ID] = c
		}
	}
	for _, a := range ev.Alerts {
		if prev, ok := previous[a.CisternID]; ok && a.Severity <= prev.Severity {
			continue
		}
		if err := uc.notifier.NotifyAlert(ctx, a, cisterns[a.CisternID]); err != nil {
			log.Printf("Error notifying alert for cistern %s: %v", a.CisternID, err)
			metrics.RecordNotificationFailure("telegram")
			report.Failed++
			continue
		}
		report.Notified++
	}
	log.Printf("Monitoring cycle finished: %d notified, %d failed", report.Notified, report.Failed)
	return report, nil
}

// CisternView is the current state of one cistern for display.
type CisternView struct {
	Cistern    entities.Cistern     `json:"cistern"`
	Prediction predictor.Prediction `json:"prediction"`
	Alert      *alerts.Alert        `json:"alert,omitempty"`
}

// CisternStatus evaluates a single cistern without storing anything.
func (uc *MonitoringUseCase) CisternStatus(ctx context.Context, id string, asOf time.Time) (CisternView, error) {
	c, err := uc.store.GetCistern(ctx, id)
	if err != nil {
		return CisternView{}, err
	}
	reports, err := uc.store.ListReports(ctx)
	if err != nil {
		return CisternView{}, err
	}
	pred, err := uc.predict(ctx, c, asOf)
	if err != nil {
		return CisternView{}, err
	}
	view := CisternView{Cistern: c, Prediction: pred}
	a, ok, err := alerts.Evaluate(uc.cfg, c, pred, reports)
	if err != nil {
		return CisternView{}, err
	}
	if ok {
		view.Alert = &a
	}
	return view, nil
}

// predict loads the fill history and family of c and projects it to asOf.
func (uc *MonitoringUseCase) predict(ctx context.Context, c entities.Cistern, asOf time.Time) (predictor.Prediction, error) {
	fills, err := uc.store.ListFills(ctx, c.ID)
	if err != nil {
		return predictor.Prediction{}, err
	}
	var family *entities.Family
	if c.FamilyID != "" {
		f, err := uc.store.GetFamily(ctx, c.FamilyID)
		if err != nil {
			return predictor.Prediction{}, err
		}
		family = &f
	}
	return predictor.Predict(uc.cfg, c, fills, family, asOf)
}

// CurrentAlerts evaluates all cisterns without storing anything, most severe first.
func (uc *MonitoringUseCase) CurrentAlerts(ctx context.Context, asOf time.Time) ([]alerts.Alert, error) {
	s, err := uc.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	ev := uc.evaluate(s, asOf)
	out := append([]alerts.Alert(nil), ev.Alerts...)
	sortAlerts(out)
	return out, nil
}
