// Package fleethealth computes the fleet-wide health score, the
// bounded snapshot ring backing the trend endpoint, and the rule-templated
// textual insights.
package fleethealth

import (
	"fmt"
	"sort"
	"time"

	"github.com/fleetops/fuelcore/internal/models"
)

// Input is everything one scoring pass needs, read from committed snapshot
// state after a cycle completes rather than from in-flight shard state.
type Input struct {
	Items        []models.ActionItem
	RiskScores   []models.TruckRiskScore
	TotalTrucks  int
	ActiveTrucks int

	// SystemicIssuePct is the fraction of trucks sharing a critical or high item on
	// the same component above which the systemic penalty applies.
	SystemicIssuePct float64
}

// Result is the scored output before it is stamped into a snapshot.
type Result struct {
	Score          float64
	Status         string
	Description    string
	UrgencySummary models.UrgencySummary
}

// Compute derives the fleet health score from one cycle's action items and
// risk scores. The score starts at 100 and is penalized by per-truck urgency
// counts, a systemic same-component penalty, and maintenance history.
func Compute(in Input) Result {
	if in.TotalTrucks == 0 {
		return Result{Score: 100, Status: "Sin datos", Description: "Sin datos de flota"}
	}

	summary := summarize(in.Items)

	// Per-truck weighting keeps a large fleet with one sick truck from
	// looking as bad as a small fleet with the same counts.
	perTruck := float64(in.TotalTrucks)
	base := (4.0*float64(summary.Critical) + 2.0*float64(summary.High) +
		0.5*float64(summary.Medium) + 0.1*float64(summary.Low)) / perTruck * 10

	systemic := systemicPenalty(in.Items, in.TotalTrucks, in.SystemicIssuePct)

	var maintenance float64
	for _, rs := range in.RiskScores {
		if rs.DaysSinceLastMaintenance != nil && *rs.DaysSinceLastMaintenance > 30 {
			maintenance += 0.5
		}
	}

	score := 100 - base - systemic - maintenance
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Result{
		Score:          score,
		Status:         statusLabel(score),
		Description:    describe(score, summary),
		UrgencySummary: summary,
	}
}

func summarize(items []models.ActionItem) models.UrgencySummary {
	var s models.UrgencySummary
	for _, item := range items {
		switch item.Priority {
		case models.PriorityCritical:
			s.Critical++
		case models.PriorityHigh:
			s.High++
		case models.PriorityMedium:
			s.Medium++
		case models.PriorityLow:
			s.Low++
		}
	}
	return s
}

// systemicPenalty punishes fleet-wide problems harder than one truck with
// many issues: when more than pct of trucks carry a critical-or-high item on
// the same component, the shared component costs an extra 10 points.
func systemicPenalty(items []models.ActionItem, totalTrucks int, pct float64) float64 {
	if totalTrucks == 0 {
		return 0
	}
	if pct <= 0 {
		pct = 0.3
	}

	trucksByComponent := make(map[string]map[string]bool)
	for _, item := range items {
		if item.Priority != models.PriorityCritical && item.Priority != models.PriorityHigh {
			continue
		}
		if item.TruckID == models.FleetWideTruckID {
			continue
		}
		if trucksByComponent[item.Component] == nil {
			trucksByComponent[item.Component] = make(map[string]bool)
		}
		trucksByComponent[item.Component][item.TruckID] = true
	}

	var penalty float64
	for _, trucks := range trucksByComponent {
		if float64(len(trucks))/float64(totalTrucks) > pct {
			penalty += 10
		}
	}
	return penalty
}

func statusLabel(score float64) string {
	switch {
	case score >= 90:
		return "Excelente"
	case score >= 75:
		return "Bueno"
	case score >= 60:
		return "Atención Requerida"
	case score >= 40:
		return "Alerta"
	default:
		return "Crítico"
	}
}

func describe(score float64, s models.UrgencySummary) string {
	total := s.Critical + s.High + s.Medium + s.Low
	if total == 0 {
		return "Flota en excelente estado."
	}
	return fmt.Sprintf("%d problemas activos (%d críticos, %d altos), salud %.0f/100",
		total, s.Critical, s.High, score)
}

// Insights renders the rule-templated textual insight list for the current
// cycle. Rules fire independently and the output preserves rule order.
func Insights(in Input, result Result) []string {
	var insights []string

	if in.TotalTrucks == 0 || len(in.Items) == 0 {
		return []string{"Flota en excelente estado."}
	}

	if result.UrgencySummary.Critical > 0 {
		criticalTrucks := trucksWithPriority(in.Items, models.PriorityCritical)
		example := ""
		if len(criticalTrucks) > 0 {
			example = ", incluyendo " + criticalTrucks[0]
		}
		insights = append(insights, fmt.Sprintf("%d camiones requieren atención inmediata%s",
			len(criticalTrucks), example))
	}

	for _, item := range in.Items {
		if item.Component == "transmission" && item.DaysToCritical != nil && *item.DaysToCritical <= 7 {
			insights = append(insights, fmt.Sprintf(
				"Transmisión de %s en riesgo dentro de %.0f días; ignorarlo puede costar %s",
				item.TruckID, *item.DaysToCritical, costDisplay(item.CostIfIgnored)))
			break
		}
	}

	for _, item := range in.Items {
		if item.Category == "DEF" && item.Priority == models.PriorityCritical {
			insights = append(insights, fmt.Sprintf("Sistema DEF crítico en %s: riesgo de derate", item.TruckID))
			break
		}
	}

	if component, trucks := dominantComponent(in.Items); len(trucks) >= 2 &&
		in.TotalTrucks > 0 && float64(len(trucks))/float64(in.TotalTrucks) >= in.SystemicIssuePct {
		insights = append(insights, fmt.Sprintf(
			"Patrón sistémico: %d camiones presentan problemas de %s", len(trucks), component))
	}

	for _, item := range in.Items {
		if item.DaysToCritical != nil && *item.DaysToCritical < 7 && item.Priority != models.PriorityCritical {
			insights = append(insights, fmt.Sprintf(
				"Advertencia de escalamiento: %s en %s podría volverse crítico en %.0f días",
				item.Component, item.TruckID, *item.DaysToCritical))
			break
		}
	}

	if len(insights) == 0 {
		insights = append(insights, "Sin hallazgos urgentes este ciclo.")
	}
	return insights
}

func trucksWithPriority(items []models.ActionItem, p models.Priority) []string {
	seen := make(map[string]bool)
	var trucks []string
	for _, item := range items {
		if item.Priority == p && item.TruckID != models.FleetWideTruckID && !seen[item.TruckID] {
			seen[item.TruckID] = true
			trucks = append(trucks, item.TruckID)
		}
	}
	sort.Strings(trucks)
	return trucks
}

func dominantComponent(items []models.ActionItem) (string, []string) {
	byComponent := make(map[string]map[string]bool)
	for _, item := range items {
		if item.TruckID == models.FleetWideTruckID {
			continue
		}
		if byComponent[item.Component] == nil {
			byComponent[item.Component] = make(map[string]bool)
		}
		byComponent[item.Component][item.TruckID] = true
	}

	best, bestCount := "", 0
	for component, trucks := range byComponent {
		if len(trucks) > bestCount || (len(trucks) == bestCount && component < best) {
			best, bestCount = component, len(trucks)
		}
	}
	if best == "" {
		return "", nil
	}
	var trucks []string
	for t := range byComponent[best] {
		trucks = append(trucks, t)
	}
	sort.Strings(trucks)
	return best, trucks
}

func costDisplay(cost *models.CostRange) string {
	if cost == nil {
		return "una reparación mayor"
	}
	return fmt.Sprintf("$%.0f – $%.0f", cost.Min, cost.Max)
}

// Snapshot stamps a Result into a FleetHealthSnapshot with the trend
// computed against the ring's recent history.
func Snapshot(result Result, trend models.HealthTrend, totalTrucks, activeTrucks int, now time.Time) models.FleetHealthSnapshot {
	return models.FleetHealthSnapshot{
		Timestamp:      now.UTC().Format(time.RFC3339),
		Score:          result.Score,
		Status:         result.Status,
		Trend:          trend,
		Description:    result.Description,
		UrgencySummary: result.UrgencySummary,
		TotalTrucks:    totalTrucks,
		ActiveTrucks:   activeTrucks,
	}
}
