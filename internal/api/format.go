package api

import (
	"fmt"
	"strings"

	"github.com/abelzeko/aguasur/internal/alerts"
	"github.com/abelzeko/aguasur/internal/dashboard"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/predictor"
	"github.com/abelzeko/aguasur/internal/triage"
	"github.com/abelzeko/aguasur/internal/usecases"
)

const timeFormat = "2006-01-02 15:04 MST"

var severityIcons = map[entities.Severity]string{
	entities.SeverityNone:     "🟢",
	entities.SeverityLow:      "🟡",
	entities.SeverityMedium:   "🟠",
	entities.SeverityHigh:     "🔴",
	entities.SeverityCritical: "🚨",
}

var reasonText = map[alerts.ReasonCode]string{
	alerts.ReasonLevelLow:             "nivel bajo",
	alerts.ReasonLevelCritical:        "nivel crítico",
	alerts.ReasonEmpty:                "estanque vacío",
	alerts.ReasonAutonomyShort:        "pocos días de agua",
	alerts.ReasonAutonomyEarlyWarning: "se acaba en menos de 2 días",
	alerts.ReasonPriorityFacility:     "establecimiento prioritario",
	alerts.ReasonReportOverride:       "reporte urgente de la comunidad",
	alerts.ReasonHeuristicEstimate:    "estimación sin mediciones",
}

func reasons(codes []alerts.ReasonCode) string {
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		if t, ok := reasonText[c]; ok {
			parts = append(parts, t)
		} else {
			parts = append(parts, string(c))
		}
	}
	return strings.Join(parts, ", ")
}

// FormatAlert renders one alert for operators.
func FormatAlert(a alerts.Alert, c entities.Cistern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Alerta %s: estanque %s", severityIcons[a.Severity], a.Severity, a.CisternID)
	if c.Location != "" {
		fmt.Fprintf(&b, " (%s)", c.Location)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "💧 Nivel: %.0f%%\n", a.LevelFraction*100)
	fmt.Fprintf(&b, "⏳ Autonomía: %.1f días\n", a.AutonomyDays)
	fmt.Fprintf(&b, "📋 Motivos: %s\n", reasons(a.ReasonCodes))
	fmt.Fprintf(&b, "🕒 %s", a.IssuedAt.Format(timeFormat))
	return b.String()
}

// FormatAlerts renders a list of alerts, most urgent first as given.
func FormatAlerts(list []alerts.Alert, limit int) string {
	if len(list) == 0 {
		return "✅ No hay estanques en alerta."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Estanques en alerta: %d\n\n", len(list))
	for i, a := range list {
		if limit > 0 && i >= limit {
			fmt.Fprintf(&b, "… y %d más", len(list)-limit)
			break
		}
		fmt.Fprintf(&b, "%s %s · %.0f%% · %.1f días · %s\n", severityIcons[a.Severity], a.CisternID, a.LevelFraction*100, a.AutonomyDays, a.Severity)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatCisternStatus renders the current state of one cistern.
func FormatCisternStatus(v usecases.CisternView) string {
	c, p := v.Cistern, v.Prediction
	var b strings.Builder
	fmt.Fprintf(&b, "📍 Estanque %s (%s, %s)\n", c.ID, c.Location, c.Type)
	fmt.Fprintf(&b, "💧 Nivel: %.0f de %.0f L (%.0f%%)\n", p.CurrentLevelLiters, c.TotalCapacityLiters, p.LevelFraction*100)
	fmt.Fprintf(&b, "🚰 Consumo: %.0f L/día", p.DailyConsumptionLitersPerDay)
	if p.Confidence == predictor.ConfidenceHeuristic {
		b.WriteString(" (estimado)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "⏳ Autonomía: %d días\n", p.WholeAutonomyDays)
	if v.Alert != nil {
		fmt.Fprintf(&b, "%s Alerta %s: %s\n", severityIcons[v.Alert.Severity], v.Alert.Severity, reasons(v.Alert.ReasonCodes))
	} else {
		b.WriteString("🟢 Sin alertas\n")
	}
	if c.Status != entities.CisternOperational {
		fmt.Fprintf(&b, "⚠️ Estado: %s\n", c.Status)
	}
	fmt.Fprintf(&b, "🕒 Última lectura: %s", c.LevelUpdatedAt.Format(timeFormat))
	return b.String()
}

// FormatDashboard renders the community summary.
func FormatDashboard(s dashboard.Summary) string {
	var b strings.Builder
	b.WriteString("📊 Resumen AguaSur\n\n")
	fmt.Fprintf(&b, "👪 Familias activas: %d de %d (%d personas)\n", s.Families.Active, s.Families.Total, s.Families.Occupants)
	fmt.Fprintf(&b, "🛢️ Estanques: %d, %.0f%% lleno en total\n", s.Cisterns.Total, s.Cisterns.PercentFull)
	fmt.Fprintf(&b, "   críticos %d · bajos %d · vacíos %d · prioritarios %d\n", s.Cisterns.Critical, s.Cisterns.Low, s.Cisterns.Empty, s.Cisterns.Priority)
	b.WriteString("🚦 Alertas:")
	for _, sev := range entities.AllSeverities() {
		fmt.Fprintf(&b, " %s%d", severityIcons[sev], s.Severity.Counts[sev])
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "🚚 Llenados: %d, %.0f L, $%.0f (%.3f $/L)\n", s.Fills.Count, s.Fills.Liters, s.Fills.Cost, s.Fills.AverageCostPerLiter)
	fmt.Fprintf(&b, "📝 Reportes: %d, urgentes sin resolver %d\n", s.Reports.Total, s.Reports.UrgentUnresolved)
	fmt.Fprintf(&b, "🤝 Ahorro por compra coordinada: $%.0f\n", s.CoordinationSavings)
	fmt.Fprintf(&b, "🔔 Alertas tempranas (%.0f días): %d, %d antes del reporte, %d emergencias evitadas",
		s.EarlyWarnings.WindowDays, s.EarlyWarnings.Warnings, s.EarlyWarnings.WarningsAheadOfReports, s.EarlyWarnings.PreventedEmergencies)
	return b.String()
}

// FormatPlan renders a coordination plan.
func FormatPlan(res usecases.PlanResult) string {
	plan := res.Plan
	if len(plan.Groups) == 0 && len(plan.Excluded) == 0 {
		return "✅ Ningún estanque necesita compra coordinada."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🚚 Plan de compra (%d camiones, precios %s)\n\n", len(plan.Groups), res.QuoteSource)
	for i, g := range plan.Groups {
		fmt.Fprintf(&b, "%d. %s, camión de %.0f L: %.0f L por $%.0f (%.3f $/L)\n", i+1, g.Provider, g.Tier.BatchLiters, g.TotalLiters, g.TotalCost, g.CostPerLiter)
		for _, a := range g.Allocations {
			fmt.Fprintf(&b, "   • %s: %.0f L, paga $%.0f\n", a.MemberID, a.Liters, a.CostShare)
		}
	}
	if len(plan.Excluded) > 0 {
		b.WriteString("\nSin asignar:\n")
		for _, e := range plan.Excluded {
			fmt.Fprintf(&b, "   • %s: %s\n", e.MemberID, e.Reason)
		}
	}
	fmt.Fprintf(&b, "\n💰 Ahorro total: $%.0f", plan.Savings)
	return b.String()
}

// FormatReportReceipt confirms a stored report to the reporter.
func FormatReportReceipt(c triage.Classification) string {
	r := c.Report
	text := fmt.Sprintf("📝 Reporte %s registrado (%s), urgencia %s %s.", shortID(r.ID), r.Type, severityIcons[r.Urgency], r.Urgency)
	if len(c.MatchedKeywords) > 0 {
		text += fmt.Sprintf("\nPalabras urgentes: %s", strings.Join(c.MatchedKeywords, ", "))
	}
	return text
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
