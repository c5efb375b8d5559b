package coordination

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/aguasur/internal/alerts"
	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/predictor"
)

func ptr(v float64) *float64 { return &v }

func twoTierProvider() []Provider {
	return []Provider{{
		Name: "Aguas del Valle",
		Tiers: []Tier{
			{BatchLiters: 1500, CostPerLiter: 0.10},
			{BatchLiters: 4000, CostPerLiter: 0.06},
		},
	}}
}

func TestGreedyGroupsThreeFamiliesIntoOneTruck(t *testing.T) {
	cfg := config.DefaultEngine()
	candidates := []Candidate{
		{MemberID: "c1", Zone: "Barrio Alto", Severity: entities.SeverityCritical, AutonomyDays: 1, RequestedLiters: 1000, RemainingCapacityLiters: 1200},
		{MemberID: "c2", Zone: "Barrio Alto", Severity: entities.SeverityHigh, AutonomyDays: 2, RequestedLiters: 1400, RemainingCapacityLiters: 1500},
		{MemberID: "c3", Zone: "barrio alto", Severity: entities.SeverityMedium, AutonomyDays: 3, RequestedLiters: 1500, RemainingCapacityLiters: 2000},
	}

	plan, err := Greedy{}.Plan(cfg, candidates, twoTierProvider())
	require.NoError(t, err)
	require.Len(t, plan.Groups, 1)
	assert.Empty(t, plan.Excluded)

	g := plan.Groups[0]
	assert.Equal(t, []string{"c1", "c2", "c3"}, g.MemberIDs)
	assert.Equal(t, 4000.0, g.Tier.BatchLiters)
	assert.InDelta(t, 3900, g.TotalLiters, 1e-9)
	assert.InDelta(t, 240, g.TotalCost, 1e-9)
	assert.InDelta(t, 240.0/3900, g.CostPerLiter, 1e-9)
	assert.InDelta(t, 450, g.IndividualCost, 1e-9)
	assert.InDelta(t, 210, g.Savings, 1e-9)
	assert.InDelta(t, 210, plan.Savings, 1e-9)

	var shares, costs float64
	for _, a := range g.Allocations {
		assert.InDelta(t, a.Liters/3900, a.ShareFraction, 1e-9)
		shares += a.ShareFraction
		costs += a.CostShare
	}
	assert.InDelta(t, 1, shares, 1e-9)
	assert.InDelta(t, 240, costs, 1e-9)
	assert.InDelta(t, 1000, g.Allocations[0].Liters, 1e-9)
	assert.InDelta(t, 0.15, g.Allocations[0].IndividualCostPerLiter, 1e-9)
}

func TestGreedySplitsDistantMembersAndReprices(t *testing.T) {
	cfg := config.DefaultEngine()
	candidates := []Candidate{
		{MemberID: "near", Latitude: ptr(-33.45), Longitude: ptr(-70.66), AutonomyDays: 1, RequestedLiters: 1000, RemainingCapacityLiters: 1000},
		{MemberID: "far", Latitude: ptr(-33.55), Longitude: ptr(-70.66), AutonomyDays: 1, RequestedLiters: 1000, RemainingCapacityLiters: 1000},
	}

	plan, err := Greedy{}.Plan(cfg, candidates, twoTierProvider())
	require.NoError(t, err)
	require.Len(t, plan.Groups, 2)
	for _, g := range plan.Groups {
		assert.Len(t, g.MemberIDs, 1)
		assert.Equal(t, 1500.0, g.Tier.BatchLiters)
		assert.InDelta(t, 150, g.TotalCost, 1e-9)
		assert.InDelta(t, 0, g.Savings, 1e-9)
	}
}

func TestGreedyDoesNotJoinWhenSharingCostsMore(t *testing.T) {
	cfg := config.DefaultEngine()
	providers := []Provider{{Name: "p", Tiers: []Tier{
		{BatchLiters: 1000, CostPerLiter: 0.10},
		{BatchLiters: 4000, CostPerLiter: 0.08},
	}}}
	candidates := []Candidate{
		{MemberID: "a", Zone: "z", AutonomyDays: 1, RequestedLiters: 600, RemainingCapacityLiters: 600},
		{MemberID: "b", Zone: "z", AutonomyDays: 2, RequestedLiters: 600, RemainingCapacityLiters: 600},
	}

	plan, err := Greedy{}.Plan(cfg, candidates, providers)
	require.NoError(t, err)
	require.Len(t, plan.Groups, 2)
	assert.InDelta(t, 200, plan.TotalCost, 1e-9)
	for _, g := range plan.Groups {
		assert.Equal(t, 1000.0, g.Tier.BatchLiters)
	}
}

func TestGreedyGivesScarceTrucksToMostUrgent(t *testing.T) {
	cfg := config.DefaultEngine()
	providers := []Provider{{Name: "p", Tiers: []Tier{{BatchLiters: 4000, CostPerLiter: 0.05, AvailableTrucks: 1}}}}
	candidates := []Candidate{
		{MemberID: "low", Zone: "z", Severity: entities.SeverityLow, AutonomyDays: 4, RequestedLiters: 2000, RemainingCapacityLiters: 2000},
		{MemberID: "critical", Zone: "z", Severity: entities.SeverityCritical, AutonomyDays: 1, RequestedLiters: 2000, RemainingCapacityLiters: 2000},
		{MemberID: "high", Zone: "z", Severity: entities.SeverityHigh, AutonomyDays: 2, RequestedLiters: 2000, RemainingCapacityLiters: 2000},
	}

	plan, err := Greedy{}.Plan(cfg, candidates, providers)
	require.NoError(t, err)
	require.Len(t, plan.Groups, 1)
	assert.Equal(t, []string{"critical", "high"}, plan.Groups[0].MemberIDs)
	require.Len(t, plan.Excluded, 1)
	assert.Equal(t, "low", plan.Excluded[0].MemberID)
	assert.True(t, errors.Is(plan.Excluded[0].Err, entities.ErrConstraintUnsatisfiable))
}

func TestGreedyTieBreaksOnReportTimeThenID(t *testing.T) {
	cfg := config.DefaultEngine()
	providers := []Provider{{Name: "p", Tiers: []Tier{{BatchLiters: 1000, CostPerLiter: 0.05, AvailableTrucks: 2}}}}
	early := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	candidates := []Candidate{
		{MemberID: "b", AutonomyDays: 1, RequestedLiters: 1000, RemainingCapacityLiters: 1000},
		{MemberID: "c", AutonomyDays: 1, RequestedLiters: 1000, RemainingCapacityLiters: 1000, EarliestReportAt: early},
		{MemberID: "a", AutonomyDays: 1, RequestedLiters: 1000, RemainingCapacityLiters: 1000},
	}

	plan, err := Greedy{}.Plan(cfg, candidates, providers)
	require.NoError(t, err)
	require.Len(t, plan.Groups, 2)
	assert.Equal(t, "c", plan.Groups[0].MemberIDs[0])
	assert.Equal(t, "a", plan.Groups[1].MemberIDs[0])
	require.Len(t, plan.Excluded, 1)
	assert.Equal(t, "b", plan.Excluded[0].MemberID)
}

func TestGreedyExclusionsAndEligibility(t *testing.T) {
	cfg := config.DefaultEngine()
	candidates := []Candidate{
		{MemberID: "full", Zone: "z", AutonomyDays: 1, RemainingCapacityLiters: 0},
		{MemberID: "huge", Zone: "z", AutonomyDays: 1, RequestedLiters: 9000, RemainingCapacityLiters: 9000},
		{MemberID: "fine", Zone: "z", AutonomyDays: 10, RemainingCapacityLiters: 500},
	}

	plan, err := Greedy{}.Plan(cfg, candidates, twoTierProvider())
	require.NoError(t, err)
	assert.Empty(t, plan.Groups)
	require.Len(t, plan.Excluded, 2)
	ids := []string{plan.Excluded[0].MemberID, plan.Excluded[1].MemberID}
	assert.ElementsMatch(t, []string{"full", "huge"}, ids)
	for _, e := range plan.Excluded {
		assert.ErrorIs(t, e.Err, entities.ErrConstraintUnsatisfiable)
		assert.NotEmpty(t, e.Reason)
	}
}

func TestGreedyAllocationNeverExceedsRemainingCapacity(t *testing.T) {
	cfg := config.DefaultEngine()
	var candidates []Candidate
	remaining := map[string]float64{}
	for i, rem := range []float64{300, 800, 1200, 50, 2500, 1000} {
		id := string(rune('a' + i))
		remaining[id] = rem
		candidates = append(candidates, Candidate{MemberID: id, Zone: "z", AutonomyDays: 1, RequestedLiters: 1000, RemainingCapacityLiters: rem})
	}

	plan, err := Greedy{}.Plan(cfg, candidates, twoTierProvider())
	require.NoError(t, err)
	for _, g := range plan.Groups {
		assert.LessOrEqual(t, g.TotalLiters, g.Tier.BatchLiters)
		for _, a := range g.Allocations {
			assert.LessOrEqual(t, a.Liters, remaining[a.MemberID])
			assert.LessOrEqual(t, a.Liters, 1000.0)
		}
	}
}

func TestGreedyRejectsInvalidInput(t *testing.T) {
	cfg := config.DefaultEngine()
	ok := []Candidate{{MemberID: "a", AutonomyDays: 1, RemainingCapacityLiters: 100}}

	_, err := Greedy{}.Plan(cfg, ok, nil)
	assert.ErrorIs(t, err, entities.ErrInvalidInput)

	_, err = Greedy{}.Plan(cfg, ok, []Provider{{Name: "p", Tiers: []Tier{{BatchLiters: 0, CostPerLiter: 1}}}})
	assert.ErrorIs(t, err, entities.ErrInvalidInput)

	_, err = Greedy{}.Plan(cfg, ok, []Provider{{Name: " ", Tiers: []Tier{{BatchLiters: 10, CostPerLiter: 1}}}})
	assert.ErrorIs(t, err, entities.ErrInvalidInput)

	dup := append(ok, ok[0])
	_, err = Greedy{}.Plan(cfg, dup, twoTierProvider())
	assert.ErrorIs(t, err, entities.ErrInvalidInput)
}

func TestNear(t *testing.T) {
	cfg := config.DefaultEngine()
	a := Candidate{Latitude: ptr(-33.450), Longitude: ptr(-70.660), Zone: "norte"}
	b := Candidate{Latitude: ptr(-33.455), Longitude: ptr(-70.660), Zone: "sur"}
	c := Candidate{Latitude: ptr(-33.550), Longitude: ptr(-70.660), Zone: "norte"}

	assert.True(t, Near(cfg, a, b), "about 550 m apart")
	assert.False(t, Near(cfg, a, c), "coordinates win over matching zones")
	assert.True(t, Near(cfg, Candidate{Zone: "Norte "}, Candidate{Zone: "norte"}))
	assert.True(t, Near(cfg, a, Candidate{Zone: "NORTE"}))
	assert.False(t, Near(cfg, Candidate{}, Candidate{}))
}

func TestBuildCandidates(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	cisterns := []entities.Cistern{
		{ID: "c1", FamilyID: "f1", Type: entities.CisternDomestic, Status: entities.CisternOperational, TotalCapacityLiters: 2000, CurrentLevelLiters: 500},
		{ID: "c2", FamilyID: "f2", Type: entities.CisternDomestic, Status: entities.CisternOperational, TotalCapacityLiters: 2000, CurrentLevelLiters: 500},
		{ID: "c3", Type: entities.CisternSchool, Status: entities.CisternDamaged, TotalCapacityLiters: 2000},
		{ID: "c4", Type: entities.CisternCommunal, Status: entities.CisternOperational, TotalCapacityLiters: 2000},
	}
	families := []entities.Family{
		{ID: "f1", Zone: "norte", Active: true},
		{ID: "f2", Zone: "sur", Active: false},
	}
	preds := []predictor.Prediction{
		{CisternID: "c1", EstimatedAutonomyDays: 2.5, CurrentLevelLiters: 500},
		{CisternID: "c2", EstimatedAutonomyDays: 1, CurrentLevelLiters: 500},
		{CisternID: "c3", EstimatedAutonomyDays: 0},
	}
	issued := []alerts.Alert{{CisternID: "c1", Severity: entities.SeverityHigh}}
	reports := []entities.Report{
		{ID: "r1", FamilyID: "f1", Status: entities.ReportPending, CreatedAt: now},
		{ID: "r2", CisternID: "c1", Status: entities.ReportInProgress, CreatedAt: now.Add(-time.Hour)},
		{ID: "r3", CisternID: "c1", Status: entities.ReportResolved, CreatedAt: now.Add(-48 * time.Hour)},
	}

	got := BuildCandidates(cisterns, families, preds, issued, reports)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "c1", c.MemberID)
	assert.Equal(t, "f1", c.FamilyID)
	assert.Equal(t, "norte", c.Zone)
	assert.Equal(t, entities.SeverityHigh, c.Severity)
	assert.InDelta(t, 2.5, c.AutonomyDays, 1e-9)
	assert.InDelta(t, 1500, c.RemainingCapacityLiters, 1e-9)
	assert.Zero(t, c.RequestedLiters)
	assert.True(t, c.EarliestReportAt.Equal(now.Add(-time.Hour)))
}

func TestBuildCandidatesZoneFallsBackToCistern(t *testing.T) {
	cisterns := []entities.Cistern{
		{ID: "school", Location: "Escuela Rural", Zone: "norte", Type: entities.CisternSchool, Status: entities.CisternOperational, TotalCapacityLiters: 3000},
		{ID: "pozo", Location: "Plaza Central", Type: entities.CisternCommunal, Status: entities.CisternOperational, TotalCapacityLiters: 3000},
		{ID: "f1-tank", FamilyID: "f1", Location: "Calle 3", Zone: "sur", Type: entities.CisternDomestic, Status: entities.CisternOperational, TotalCapacityLiters: 1000},
	}
	families := []entities.Family{{ID: "f1", Zone: "norte", Active: true}}
	preds := []predictor.Prediction{
		{CisternID: "school", EstimatedAutonomyDays: 1, CurrentLevelLiters: 600},
		{CisternID: "pozo", EstimatedAutonomyDays: 1},
		{CisternID: "f1-tank", EstimatedAutonomyDays: 1},
	}

	got := BuildCandidates(cisterns, families, preds, nil, nil)
	require.Len(t, got, 3)
	assert.Equal(t, "norte", got[0].Zone)
	assert.InDelta(t, 2400, got[0].RemainingCapacityLiters, 1e-9, "filled from the predicted level")
	assert.Equal(t, "Plaza Central", got[1].Zone)
	assert.Equal(t, "norte", got[2].Zone, "the family zone wins")

	cfg := config.DefaultEngine()
	assert.True(t, Near(cfg, got[0], got[2]), "a family-less school shares a truck with its zone")
}

func TestProvidersFromConfig(t *testing.T) {
	got := ProvidersFromConfig([]config.Provider{{Name: "p", Tiers: []config.ProviderTier{{BatchLiters: 10, CostPerLiter: 2, AvailableTrucks: 3}}}})
	require.Len(t, got, 1)
	assert.Equal(t, Tier{BatchLiters: 10, CostPerLiter: 2, AvailableTrucks: 3}, got[0].Tiers[0])
	assert.InDelta(t, 20, got[0].Tiers[0].Price(), 1e-9)
}
