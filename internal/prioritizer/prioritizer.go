// Package prioritizer merges duplicate ActionItems sharing
// a (truck, component) key and computing each survivor's priority_score
// from a weighted blend of sub-signals.
package prioritizer

import (
	"crypto/rand"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/models"
)

// Input pairs an ActionItem with the optional sub-signals scoring needs
// but the synthesizer does not persist onto the item itself.
type Input struct {
	Item         models.ActionItem
	AnomalyScore *float64 // accepts either a 0-1 or 0-100 scale
}

func dedupKey(item models.ActionItem) string {
	if item.TruckID == models.FleetWideTruckID {
		return strings.Join([]string{models.FleetWideTruckID, item.Component, item.Category}, "|")
	}
	return strings.Join([]string{item.TruckID, item.Component}, "|")
}

// sourceWeight returns the tie-break/display weight for a source name, or
// 25 for anything not in the configured table.
func sourceWeight(cfg *config.Config, source string) float64 {
	if w, ok := cfg.SourceWeights[source]; ok {
		return w
	}
	return 25
}

func bestSource(cfg *config.Config, sources []string) string {
	if len(sources) == 0 {
		return "Unknown"
	}
	best := sources[0]
	bestWeight := sourceWeight(cfg, best)
	for _, s := range sources[1:] {
		if w := sourceWeight(cfg, s); w > bestWeight {
			best, bestWeight = s, w
		}
	}
	return best
}

// Process runs the dedup and scoring stages and returns one ActionItem per surviving
// (truck, component) group, each with a freshly assigned ID and priority
// fields populated.
func Process(cfg *config.Config, inputs []Input, now time.Time) ([]models.ActionItem, error) {
	groups := make(map[string][]Input)
	var order []string
	for _, in := range inputs {
		k := dedupKey(in.Item)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], in)
	}

	results := make([]models.ActionItem, 0, len(order))
	for _, k := range order {
		merged, err := mergeGroup(cfg, groups[k], now)
		if err != nil {
			return nil, err
		}
		results = append(results, merged)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].PriorityScore > results[j].PriorityScore
	})

	return results, nil
}

func mergeGroup(cfg *config.Config, inputs []Input, now time.Time) (models.ActionItem, error) {
	scored := make([]struct {
		in    Input
		score float64
	}, len(inputs))
	for i, in := range inputs {
		scored[i].in = in
		scored[i].score = priorityScore(cfg, in)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return sourceWeight(cfg, bestSource(cfg, scored[i].in.Item.Sources)) > sourceWeight(cfg, bestSource(cfg, scored[j].in.Item.Sources))
	})

	primary := scored[0].in.Item
	primaryScore := scored[0].score

	var allSources []string
	seenSource := make(map[string]bool)
	var minDays *float64
	cost := primary.CostIfIgnored

	for _, s := range scored {
		for _, src := range s.in.Item.Sources {
			if !seenSource[src] {
				seenSource[src] = true
				allSources = append(allSources, src)
			}
		}
		if s.in.Item.DaysToCritical != nil {
			if minDays == nil || *s.in.Item.DaysToCritical < *minDays {
				minDays = s.in.Item.DaysToCritical
			}
		}
		if cost == nil && s.in.Item.CostIfIgnored != nil {
			cost = s.in.Item.CostIfIgnored
		}
	}

	merged := primary
	merged.Sources = allSources
	merged.DaysToCritical = minDays
	merged.CostIfIgnored = cost

	if len(allSources) >= 3 {
		merged.Description = fmt.Sprintf("Multiple systems corroborate an issue with %s (%d sources): %s",
			merged.Component, len(allSources), strings.Join(allSources, ", "))
	}

	id, err := generateActionID(now)
	if err != nil {
		return models.ActionItem{}, err
	}
	merged.ID = id

	merged.PriorityScore = recomputeScoreWithMergedDays(cfg, primaryScore, primary.DaysToCritical, merged.DaysToCritical)
	merged.Priority = priorityLabel(merged.PriorityScore)
	merged.ActionType = actionTypeFor(merged.Priority, merged.DaysToCritical)

	return merged, nil
}

// recomputeScoreWithMergedDays re-derives the days-urgency sub-signal using
// the merged (minimum) days_to_critical rather than the primary item's own
// value, since the merge may have pulled in a more urgent corroborating
// source, then folds it back into the primary's already-weighted score by
// replacing only the days component proportionally.
func recomputeScoreWithMergedDays(cfg *config.Config, primaryScore float64, primaryDays, mergedDays *float64) float64 {
	if mergedDays == nil || primaryDays == nil || *mergedDays == *primaryDays {
		return primaryScore
	}
	oldSub := daysUrgencyScore(primaryDays)
	newSub := daysUrgencyScore(mergedDays)
	delta := (newSub - oldSub) * 0.45
	score := primaryScore + delta
	return clampScore(score)
}

func daysUrgencyScore(days *float64) float64 {
	if days == nil {
		return -1
	}
	d := *days
	if d <= 0 {
		return 100
	}
	score := 100 * math.Exp(-0.04*d)
	if score < 5 {
		score = 5
	}
	return score
}

func normalizeAnomalyScore(raw float64) float64 {
	if raw <= 1.0 {
		return raw * 100
	}
	return raw
}

func costFactor(cost *models.CostRange) float64 {
	if cost == nil {
		return -1
	}
	avg := cost.Avg
	if avg <= 0 {
		avg = (cost.Min + cost.Max) / 2
	}
	if avg <= 0 {
		return -1
	}
	// log-linear mapping: $500 -> ~10, $5k -> ~50, $15k -> ~100
	logAvg := math.Log10(avg)
	log500 := math.Log10(500.0)
	log5k := math.Log10(5000.0)
	log15k := math.Log10(15000.0)
	var factor float64
	if logAvg <= log5k {
		factor = 10 + (logAvg-log500)/(log5k-log500)*40
	} else {
		factor = 50 + (logAvg-log5k)/(log15k-log5k)*50
	}
	return clampScore(factor)
}

func criticalityFactor(cfg *config.Config, componentKey string) float64 {
	info, ok := cfg.Components[componentKey]
	if !ok || info.Criticality == 0 {
		return -1
	}
	return clampScore(100 * info.Criticality / 3.0)
}

// priorityScore blends the four sub-signals, renormalizing weights over
// whichever sub-signals are actually present. With no signals present at
// all, defaults to 50 (MEDIUM).
func priorityScore(cfg *config.Config, in Input) float64 {
	type weighted struct {
		value  float64
		weight float64
	}

	var signals []weighted

	if in.Item.DaysToCritical != nil {
		signals = append(signals, weighted{daysUrgencyScore(in.Item.DaysToCritical), 0.45})
	}
	if in.AnomalyScore != nil {
		signals = append(signals, weighted{normalizeAnomalyScore(*in.AnomalyScore), 0.20})
	}
	if cf := criticalityFactor(cfg, in.Item.Component); cf >= 0 {
		signals = append(signals, weighted{cf, 0.25})
	}
	if cof := costFactor(in.Item.CostIfIgnored); cof >= 0 {
		signals = append(signals, weighted{cof, 0.10})
	}

	if len(signals) == 0 {
		return 50
	}

	var totalWeight, weightedSum float64
	for _, s := range signals {
		totalWeight += s.weight
		weightedSum += s.value * s.weight
	}
	return clampScore(weightedSum / totalWeight)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func priorityLabel(score float64) models.Priority {
	switch {
	case score >= 85:
		return models.PriorityCritical
	case score >= 65:
		return models.PriorityHigh
	case score >= 40:
		return models.PriorityMedium
	case score >= 20:
		return models.PriorityLow
	default:
		return models.PriorityNone
	}
}

func actionTypeFor(priority models.Priority, daysToCritical *float64) models.ActionType {
	switch priority {
	case models.PriorityCritical:
		if daysToCritical != nil && *daysToCritical <= 1 {
			return models.ActionStopImmediately
		}
		return models.ActionScheduleThisWeek
	case models.PriorityHigh:
		return models.ActionScheduleThisWeek
	case models.PriorityMedium:
		return models.ActionScheduleThisMonth
	case models.PriorityLow:
		return models.ActionMonitor
	default:
		return models.ActionNone
	}
}

// generateActionID produces ACT-YYYYMMDD-XXXXXXXX with the suffix drawn
// from a cryptographic RNG, collision-resistant across concurrent shards
// generating IDs at the same instant.
func generateActionID(now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate action id: %w", err)
	}
	suffix := strconv.FormatUint(uint64(buf[0])<<24|uint64(buf[1])<<16|uint64(buf[2])<<8|uint64(buf[3]), 16)
	for len(suffix) < 8 {
		suffix = "0" + suffix
	}
	return fmt.Sprintf("ACT-%s-%s", now.UTC().Format("20060102"), suffix), nil
}
