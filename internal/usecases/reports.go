package usecases

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/triage"
)

// SubmitReport triages a community report and stores it. Referenced cisterns and families must exist.
func (uc *MonitoringUseCase) SubmitReport(ctx context.Context, draft entities.Report) (triage.Classification, error) {
	if draft.CisternID != "" {
		if _, err := uc.store.GetCistern(ctx, draft.CisternID); err != nil {
			return triage.Classification{}, fmt.Errorf("report cistern: %w", err)
		}
	}
	if draft.FamilyID != "" {
		f, err := uc.store.GetFamily(ctx, draft.FamilyID)
		if err != nil {
			return triage.Classification{}, fmt.Errorf("report family: %w", err)
		}
		if draft.Zone == "" {
			draft.Zone = f.Zone
		}
	}

	cls, err := triage.Classify(uc.cfg, draft, uc.now())
	if err != nil {
		return triage.Classification{}, err
	}
	stored, err := uc.store.CreateReport(ctx, cls.Report)
	if err != nil {
		return triage.Classification{}, err
	}
	cls.Report = stored
	return cls, nil
}

// FreeTextOutcome is a report created from a free-text message.
type FreeTextOutcome struct {
	Classification triage.Classification
	UserMessage    string
}

// SubmitFreeTextReport interprets a message with the configured interpreter, then triages and stores it.
func (uc *MonitoringUseCase) SubmitFreeTextReport(ctx context.Context, message, familyID, cisternID string) (FreeTextOutcome, error) {
	if uc.interpreter == nil {
		return FreeTextOutcome{}, ErrInterpreterUnavailable
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return FreeTextOutcome{}, fmt.Errorf("%w: empty message", entities.ErrInvalidInput)
	}

	log.Printf("Interpreting free-text report: %s", message)
	draft, err := uc.interpreter.InterpretReport(ctx, message)
	if err != nil {
		return FreeTextOutcome{}, fmt.Errorf("failed to interpret report: %w", err)
	}

	r := draft.Report()
	r.FamilyID = familyID
	r.CisternID = cisternID
	// Keywords are matched against the user's own words as well as the summary.
	r.Description = strings.TrimSpace(r.Description + "\n" + message)

	cls, err := uc.SubmitReport(ctx, r)
	if err != nil {
		return FreeTextOutcome{}, err
	}
	return FreeTextOutcome{Classification: cls, UserMessage: draft.UserMessage}, nil
}

// AdvanceReport moves a report to its next status.
func (uc *MonitoringUseCase) AdvanceReport(ctx context.Context, id string, to entities.ReportStatus, notes string) (entities.Report, error) {
	return uc.updateReport(ctx, id, func(r entities.Report) (entities.Report, error) {
		return triage.Transition(r, to, uc.now(), notes)
	})
}

// EscalateReport raises the urgency of an open report.
func (uc *MonitoringUseCase) EscalateReport(ctx context.Context, id string, to entities.Severity) (entities.Report, error) {
	return uc.updateReport(ctx, id, func(r entities.Report) (entities.Report, error) {
		return triage.Escalate(r, to)
	})
}

// OverrideReportUrgency sets any urgency on an open report, recording the reason.
func (uc *MonitoringUseCase) OverrideReportUrgency(ctx context.Context, id string, to entities.Severity, reason string) (entities.Report, error) {
	return uc.updateReport(ctx, id, func(r entities.Report) (entities.Report, error) {
		return triage.Override(r, to, reason)
	})
}

// ListReports returns all stored reports.
func (uc *MonitoringUseCase) ListReports(ctx context.Context) ([]entities.Report, error) {
	return uc.store.ListReports(ctx)
}

func (uc *MonitoringUseCase) updateReport(ctx context.Context, id string, change func(entities.Report) (entities.Report, error)) (entities.Report, error) {
	r, err := uc.store.GetReport(ctx, id)
	if err != nil {
		return entities.Report{}, err
	}
	next, err := change(r)
	if err != nil {
		return entities.Report{}, err
	}
	if next.Version == r.Version {
		return r, nil
	}
	if err := uc.store.UpdateReport(ctx, next, r.Version); err != nil {
		return entities.Report{}, err
	}
	log.Printf("Report %s now %s with urgency %s (version %d)", next.ID, next.Status, next.Urgency, next.Version)
	return next, nil
}
