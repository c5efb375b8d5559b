package entities

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateFamily checks the family invariants.
func ValidateFamily(f Family) error {
	return check("family", f)
}

// ValidateCistern checks the cistern invariants, including level within capacity.
func ValidateCistern(c Cistern) error {
	return check("cistern", c)
}

// ValidateFillEvent checks a fill event before it is appended to history.
func ValidateFillEvent(f FillEvent) error {
	return check("fill event", f)
}

// ValidateReport checks a report, including that ResolvedAt is set iff the report is resolved.
func ValidateReport(r Report) error {
	if err := check("report", r); err != nil {
		return err
	}
	switch {
	case r.Status == ReportResolved && r.ResolvedAt == nil:
		return fmt.Errorf("%w: report: resolved report without resolution time", ErrInvalidInput)
	case r.Status != ReportResolved && r.ResolvedAt != nil:
		return fmt.Errorf("%w: report: resolution time set on %s report", ErrInvalidInput, r.Status)
	case r.ResolvedAt != nil && r.ResolvedAt.Before(r.CreatedAt):
		return fmt.Errorf("%w: report: resolved before it was created", ErrInvalidInput)
	}
	return nil
}

func check(kind string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInput, kind, err)
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, kind, strings.Join(parts, "; "))
}
