package triage

import (
	"testing"
	"time"

	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2025, time.May, 2, 7, 30, 0, 0, time.UTC)

func classify(t *testing.T, kind entities.ReportType, declared entities.Severity, text string) Classification {
	t.Helper()
	c, err := Classify(config.DefaultEngine(), entities.Report{
		ID:          "r1",
		FamilyID:    "f1",
		Type:        kind,
		Description: text,
		Urgency:     declared,
	}, created)
	require.NoError(t, err)
	return c
}

func TestClassifyContaminatedWithKeywordIsCritical(t *testing.T) {
	c := classify(t, entities.ReportContaminated, entities.SeverityNone, "El agua sale turbia, es urgente")
	assert.Equal(t, entities.SeverityHigh, c.BaselineUrgency)
	assert.Equal(t, entities.SeverityCritical, c.Report.Urgency)
	assert.Equal(t, []string{"urgente"}, c.MatchedKeywords)
	assert.Equal(t, entities.ReportPending, c.Report.Status)
	assert.Equal(t, created, c.Report.CreatedAt)
}

func TestClassifyBaselines(t *testing.T) {
	assert.Equal(t, entities.SeverityMedium, classify(t, entities.ReportRunningOut, entities.SeverityLow, "queda poca").Report.Urgency)
	assert.Equal(t, entities.SeverityHigh, classify(t, entities.ReportContaminated, entities.SeverityNone, "olor raro").Report.Urgency)
	assert.Equal(t, entities.SeverityLow, classify(t, entities.ReportInfrastructure, entities.SeverityNone, "tubo roto").Report.Urgency)
	assert.Equal(t, entities.SeverityHigh, classify(t, entities.ReportOther, entities.SeverityHigh, "consulta").Report.Urgency)
}

func TestClassifyKeywordsIgnoreAccentsAndCase(t *testing.T) {
	c := classify(t, entities.ReportRunningOut, entities.SeverityNone, "Tenemos NINOS enfermos en casa")
	assert.Equal(t, entities.SeverityHigh, c.Report.Urgency)
	assert.ElementsMatch(t, []string{"enfermo", "niños"}, c.MatchedKeywords)
}

func TestClassifyMatchesWholeWordsOnly(t *testing.T) {
	c := classify(t, entities.ReportInfrastructure, entities.SeverityNone, "El bebedero del patio gotea un poco")
	assert.Equal(t, entities.SeverityLow, c.Report.Urgency)
	assert.Empty(t, c.MatchedKeywords)

	c = classify(t, entities.ReportOther, entities.SeverityNone, "Sinagua no es una palabra")
	assert.Empty(t, c.MatchedKeywords)
}

func TestMatchKeywordsSequencesAndPlurals(t *testing.T) {
	kws := config.DefaultEngine().UrgentKeywords
	assert.Equal(t, []string{"sin agua"}, MatchKeywords(kws, "Estamos SIN  AGUA desde ayer"))
	assert.Equal(t, []string{"hospital"}, MatchKeywords(kws, "los hospitales no tienen"))
	assert.Equal(t, []string{"bebé"}, MatchKeywords(kws, "hay dos bebes en la casa"))
	assert.Empty(t, MatchKeywords(kws, "agua sin cloro"))
	assert.Equal(t, []string{"urgent"}, MatchKeywords(kws, "urgent: pump broken"))
}

func TestClassifyRejectsInvalidDrafts(t *testing.T) {
	cfg := config.DefaultEngine()

	_, err := Classify(cfg, entities.Report{Type: "flood", Description: "x"}, created)
	assert.ErrorIs(t, err, entities.ErrInvalidInput)

	_, err = Classify(cfg, entities.Report{Type: entities.ReportOther, Description: "   "}, created)
	assert.ErrorIs(t, err, entities.ErrInvalidInput)

	_, err = Classify(cfg, entities.Report{Type: entities.ReportOther, Description: "x", Status: entities.ReportResolved}, created)
	assert.ErrorIs(t, err, entities.ErrInvalidInput)
}

func TestTransitionForwardOnly(t *testing.T) {
	r := classify(t, entities.ReportRunningOut, entities.SeverityNone, "se acaba").Report

	_, err := Transition(r, entities.ReportResolved, created.Add(time.Hour), "")
	assert.ErrorIs(t, err, entities.ErrInvalidTransition, "pending cannot skip in_progress")

	inProgress, err := Transition(r, entities.ReportInProgress, created.Add(time.Minute), "")
	require.NoError(t, err)
	assert.Equal(t, entities.ReportInProgress, inProgress.Status)
	assert.Equal(t, r.Version+1, inProgress.Version)
	assert.Nil(t, inProgress.ResolvedAt)

	_, err = Transition(inProgress, entities.ReportPending, created.Add(2*time.Minute), "")
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	resolved, err := Transition(inProgress, entities.ReportResolved, created.Add(3*time.Hour), "  cisterna llenada ")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, created.Add(3*time.Hour), *resolved.ResolvedAt)
	assert.Equal(t, "cisterna llenada", resolved.ResolutionNotes)

	for _, to := range []entities.ReportStatus{entities.ReportPending, entities.ReportInProgress, entities.ReportResolved} {
		again, err := Transition(resolved, to, created.Add(4*time.Hour), "")
		assert.ErrorIs(t, err, entities.ErrInvalidTransition)
		assert.Equal(t, resolved, again, "state must be unchanged on rejection")
	}
}

func TestTransitionRejectsResolutionBeforeCreation(t *testing.T) {
	r := classify(t, entities.ReportOther, entities.SeverityNone, "x").Report
	r, err := Transition(r, entities.ReportInProgress, created, "")
	require.NoError(t, err)

	_, err = Transition(r, entities.ReportResolved, created.Add(-time.Second), "")
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func TestEscalateNeverDowngrades(t *testing.T) {
	r := classify(t, entities.ReportRunningOut, entities.SeverityNone, "se acaba").Report
	require.Equal(t, entities.SeverityMedium, r.Urgency)

	up, err := Escalate(r, entities.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, entities.SeverityHigh, up.Urgency)

	_, err = Escalate(up, entities.SeverityLow)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	same, err := Escalate(up, entities.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, up, same)
}

func TestOverrideRequiresReason(t *testing.T) {
	r := classify(t, entities.ReportContaminated, entities.SeverityNone, "turbia").Report

	_, err := Override(r, entities.SeverityLow, " ")
	assert.ErrorIs(t, err, entities.ErrInvalidInput)

	down, err := Override(r, entities.SeverityLow, "laboratorio confirmó agua potable")
	require.NoError(t, err)
	assert.Equal(t, entities.SeverityLow, down.Urgency)
	assert.Equal(t, "laboratorio confirmó agua potable", down.UrgencyOverrideReason)
}
