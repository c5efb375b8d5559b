package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/abelzeko/aguasur/internal/entities"
)

func TestRecordEvaluation(t *testing.T) {
	before := testutil.ToFloat64(evaluations.WithLabelValues("error"))
	RecordEvaluation(true, errors.New("boom"))
	RecordEvaluation(true, nil)
	RecordEvaluation(false, nil)

	assert.Equal(t, before+1, testutil.ToFloat64(evaluations.WithLabelValues("error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(evaluations.WithLabelValues("alert")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(evaluations.WithLabelValues("ok")), 1.0)
}

func TestRecordAlertUsesSeverityName(t *testing.T) {
	before := testutil.ToFloat64(alertsIssued.WithLabelValues("critical"))
	RecordAlert(entities.SeverityCritical)
	assert.Equal(t, before+1, testutil.ToFloat64(alertsIssued.WithLabelValues("critical")))
}

func TestSetCoordinationSavings(t *testing.T) {
	SetCoordinationSavings(210)
	assert.Equal(t, 210.0, testutil.ToFloat64(coordinationSavings))
}
