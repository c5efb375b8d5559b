// Package coordination groups nearby households with pending need into shared water-truck purchases.
//
// The Greedy strategy is a deliberate heuristic, not an optimal bin-packing solver: members are taken
// most-urgent first and placed into the first open truck that has room, is close enough and does not
// make the truck dearer than buying alone. Otherwise a new truck is opened on the cheapest per-liter
// tier that fits. Each truck is finally re-priced on the cheapest load size that still holds it. The
// result is deterministic so that it can be explained to community leadership line by line.
package coordination

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Tier is a truckload a provider sells. Delivering up to BatchLiters costs BatchLiters*CostPerLiter.
// AvailableTrucks bounds how many loads of this tier can be ordered; zero means unlimited.
type Tier struct {
	BatchLiters     float64 `json:"batch_liters"`
	CostPerLiter    float64 `json:"cost_per_liter"`
	AvailableTrucks int     `json:"available_trucks,omitempty"`
}

// Price is the cost of one load of this tier.
func (t Tier) Price() float64 {
	return t.BatchLiters * t.CostPerLiter
}

// Provider is a water seller with its quoted tiers.
type Provider struct {
	Name  string `json:"name"`
	Tiers []Tier `json:"tiers"`
}

// ProvidersFromConfig converts configured fallback quotes.
func ProvidersFromConfig(in []config.Provider) []Provider {
	out := make([]Provider, 0, len(in))
	for _, p := range in {
		tiers := make([]Tier, 0, len(p.Tiers))
		for _, t := range p.Tiers {
			tiers = append(tiers, Tier{BatchLiters: t.BatchLiters, CostPerLiter: t.CostPerLiter, AvailableTrucks: t.AvailableTrucks})
		}
		out = append(out, Provider{Name: p.Name, Tiers: tiers})
	}
	return out
}

// Candidate is a household or facility that may join a shared purchase.
type Candidate struct {
	MemberID                string            `json:"member_id"`
	FamilyID                string            `json:"family_id,omitempty"`
	Zone                    string            `json:"zone,omitempty"`
	Latitude                *float64          `json:"latitude,omitempty"`
	Longitude               *float64          `json:"longitude,omitempty"`
	Severity                entities.Severity `json:"severity"`
	AutonomyDays            float64           `json:"autonomy_days"`
	RequestedLiters         float64           `json:"requested_liters"` // Zero means fill to capacity
	RemainingCapacityLiters float64           `json:"remaining_capacity_liters"`
	EarliestReportAt        time.Time         `json:"earliest_report_at,omitempty"`
}

// Allocation is one member's share of a truck.
type Allocation struct {
	MemberID               string  `json:"member_id"`
	Liters                 float64 `json:"liters"`
	ShareFraction          float64 `json:"share_fraction"`
	CostShare              float64 `json:"cost_share"`
	IndividualCostPerLiter float64 `json:"individual_cost_per_liter"`
}

// Group is one shared truckload.
type Group struct {
	Provider       string       `json:"provider"`
	Tier           Tier         `json:"tier"`
	MemberIDs      []string     `json:"member_ids"`
	Allocations    []Allocation `json:"allocations"`
	TotalLiters    float64      `json:"total_liters"`
	TotalCost      float64      `json:"total_cost"`
	CostPerLiter   float64      `json:"cost_per_liter"` // Per delivered liter
	IndividualCost float64      `json:"individual_cost"`
	Savings        float64      `json:"savings"`
}

// Exclusion records a member that could not be placed.
type Exclusion struct {
	MemberID string `json:"member_id"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// Plan is the optimizer output.
type Plan struct {
	Groups      []Group     `json:"groups"`
	Excluded    []Exclusion `json:"excluded,omitempty"`
	TotalLiters float64     `json:"total_liters"`
	TotalCost   float64     `json:"total_cost"`
	Savings     float64     `json:"savings"`
}

// GroupingStrategy turns candidates and quotes into a purchase plan. Greedy is the default; an exact
// solver can replace it without touching callers.
type GroupingStrategy interface {
	Plan(cfg config.Engine, candidates []Candidate, providers []Provider) (Plan, error)
}

// Greedy is the priority-first packing heuristic described in the package documentation.
type Greedy struct{}

type quote struct {
	provider string
	tier     Tier
}

type openGroup struct {
	quote   int
	members []Candidate
	liters  []float64
	total   float64
}

// Plan implements GroupingStrategy. Invalid quotes or duplicate members fail the whole call; members
// that cannot be placed are listed in Plan.Excluded.
func (Greedy) Plan(cfg config.Engine, candidates []Candidate, providers []Provider) (Plan, error) {
	quotes, err := flatten(providers)
	if err != nil {
		return Plan{}, err
	}

	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.MemberID == "" {
			return Plan{}, fmt.Errorf("%w: candidate without member id", entities.ErrInvalidInput)
		}
		if seen[c.MemberID] {
			return Plan{}, fmt.Errorf("%w: duplicate candidate %s", entities.ErrInvalidInput, c.MemberID)
		}
		if c.RequestedLiters < 0 || c.RemainingCapacityLiters < 0 {
			return Plan{}, fmt.Errorf("%w: candidate %s has negative liters", entities.ErrInvalidInput, c.MemberID)
		}
		seen[c.MemberID] = true
	}

	var plan Plan
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.AutonomyDays >= cfg.CoordinationThresholdDays {
			continue
		}
		if allocation(c) <= 0 {
			plan.Excluded = append(plan.Excluded, exclude(c, "no remaining storage capacity"))
			continue
		}
		eligible = append(eligible, c)
	}
	sortByPriority(eligible)

	used := make(map[int]int)
	var groups []*openGroup
	for _, c := range eligible {
		liters := allocation(c)
		if placeInOpenGroup(cfg, quotes, groups, c, liters) {
			continue
		}

		idx := -1
		for i, q := range quotes {
			if q.tier.BatchLiters >= liters && available(q, used[i]) {
				idx = i
				break
			}
		}
		if idx < 0 {
			plan.Excluded = append(plan.Excluded, exclude(c, fmt.Sprintf("no available truck holds %.0f liters", liters)))
			continue
		}
		used[idx]++
		groups = append(groups, &openGroup{quote: idx, members: []Candidate{c}, liters: []float64{liters}, total: liters})
	}

	for _, g := range groups {
		best := cheapestAvailable(quotes, used, g.total, g.quote)
		if best != g.quote {
			used[g.quote]--
			used[best]++
			g.quote = best
		}
		group := price(quotes, quotes[g.quote], g)
		plan.Groups = append(plan.Groups, group)
		plan.TotalLiters += group.TotalLiters
		plan.TotalCost += group.TotalCost
		plan.Savings += group.Savings
	}
	return plan, nil
}

func flatten(providers []Provider) ([]quote, error) {
	var quotes []quote
	for _, p := range providers {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("%w: provider without name", entities.ErrInvalidInput)
		}
		for _, t := range p.Tiers {
			if t.BatchLiters <= 0 || t.CostPerLiter < 0 || t.AvailableTrucks < 0 {
				return nil, fmt.Errorf("%w: provider %s has invalid tier %+v", entities.ErrInvalidInput, p.Name, t)
			}
			quotes = append(quotes, quote{provider: p.Name, tier: t})
		}
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: no provider quotes", entities.ErrInvalidInput)
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		a, b := quotes[i], quotes[j]
		if a.tier.CostPerLiter != b.tier.CostPerLiter {
			return a.tier.CostPerLiter < b.tier.CostPerLiter
		}
		if a.tier.BatchLiters != b.tier.BatchLiters {
			return a.tier.BatchLiters > b.tier.BatchLiters
		}
		return a.provider < b.provider
	})
	return quotes, nil
}

// allocation is never more than the member can store.
func allocation(c Candidate) float64 {
	if c.RequestedLiters <= 0 {
		return c.RemainingCapacityLiters
	}
	return math.Min(c.RequestedLiters, c.RemainingCapacityLiters)
}

func exclude(c Candidate, reason string) Exclusion {
	return Exclusion{
		MemberID: c.MemberID,
		Reason:   reason,
		Err:      fmt.Errorf("%w: member %s: %s", entities.ErrConstraintUnsatisfiable, c.MemberID, reason),
	}
}

// sortByPriority orders by severity desc, autonomy asc, earliest report asc, then member id.
func sortByPriority(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.AutonomyDays != b.AutonomyDays {
			return a.AutonomyDays < b.AutonomyDays
		}
		if !a.EarliestReportAt.Equal(b.EarliestReportAt) {
			switch {
			case a.EarliestReportAt.IsZero():
				return false
			case b.EarliestReportAt.IsZero():
				return true
			}
			return a.EarliestReportAt.Before(b.EarliestReportAt)
		}
		return a.MemberID < b.MemberID
	})
}

func placeInOpenGroup(cfg config.Engine, quotes []quote, groups []*openGroup, c Candidate, liters float64) bool {
	for _, g := range groups {
		if g.total+liters > quotes[g.quote].tier.BatchLiters {
			continue
		}
		if !nearAll(cfg, g.members, c) {
			continue
		}
		// Joining must not cost more than the two purchases made separately.
		if cheapestPrice(quotes, g.total+liters) > cheapestPrice(quotes, g.total)+cheapestPrice(quotes, liters)+1e-9 {
			continue
		}
		g.members = append(g.members, c)
		g.liters = append(g.liters, liters)
		g.total += liters
		return true
	}
	return false
}

func nearAll(cfg config.Engine, members []Candidate, c Candidate) bool {
	for _, m := range members {
		if !Near(cfg, m, c) {
			return false
		}
	}
	return true
}

// Near reports whether two candidates can share a truck: within the proximity radius when both have
// coordinates, otherwise in the same zone.
func Near(cfg config.Engine, a, b Candidate) bool {
	if a.Latitude != nil && a.Longitude != nil && b.Latitude != nil && b.Longitude != nil {
		pa := orb.Point{*a.Longitude, *a.Latitude}
		pb := orb.Point{*b.Longitude, *b.Latitude}
		return geo.Distance(pa, pb) <= cfg.ProximityRadiusMeters
	}
	za, zb := strings.TrimSpace(a.Zone), strings.TrimSpace(b.Zone)
	return za != "" && strings.EqualFold(za, zb)
}

func available(q quote, used int) bool {
	return q.tier.AvailableTrucks == 0 || used < q.tier.AvailableTrucks
}

// cheapestPrice is the market price of one load holding liters, ignoring availability.
func cheapestPrice(quotes []quote, liters float64) float64 {
	best := math.Inf(1)
	for _, q := range quotes {
		if q.tier.BatchLiters >= liters && q.tier.Price() < best {
			best = q.tier.Price()
		}
	}
	return best
}

// cheapestAvailable picks the lowest-priced quote holding liters, keeping current when nothing beats it.
func cheapestAvailable(quotes []quote, used map[int]int, liters float64, current int) int {
	best := current
	for i, q := range quotes {
		if i == current || q.tier.BatchLiters < liters || !available(q, used[i]) {
			continue
		}
		if q.tier.Price() < quotes[best].tier.Price()-1e-9 {
			best = i
		}
	}
	return best
}

func price(quotes []quote, q quote, g *openGroup) Group {
	total := q.tier.Price()
	out := Group{
		Provider:     q.provider,
		Tier:         q.tier,
		TotalLiters:  g.total,
		TotalCost:    total,
		CostPerLiter: total / g.total,
	}
	for i, m := range g.members {
		liters := g.liters[i]
		individual := cheapestPrice(quotes, liters) / liters
		share := liters / g.total
		out.MemberIDs = append(out.MemberIDs, m.MemberID)
		out.Allocations = append(out.Allocations, Allocation{
			MemberID:               m.MemberID,
			Liters:                 liters,
			ShareFraction:          share,
			CostShare:              share * total,
			IndividualCostPerLiter: individual,
		})
		out.IndividualCost += individual * liters
		out.Savings += (individual - out.CostPerLiter) * liters
	}
	return out
}
