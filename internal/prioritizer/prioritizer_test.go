package prioritizer

import (
	"regexp"
	"testing"
	"time"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/models"
)

func f64(v float64) *float64 { return &v }

func item(truckID, component string, sources ...string) models.ActionItem {
	return models.ActionItem{
		TruckID:   truckID,
		Component: component,
		Category:  "engine",
		Title:     component + " issue",
		Sources:   sources,
	}
}

func TestProcess_MergesDuplicateComponents(t *testing.T) {
	// One HIGH oil_pressure item from Sensor Health and one CRITICAL from
	// the PM engine on the same truck collapse into a single item keeping
	// the PM item's cost and both sources.
	cfg := config.DefaultConfig()

	sensorItem := item("T001", "oil_system", "Sensor Health")
	sensorItem.DaysToCritical = f64(12)

	pmItem := item("T001", "oil_system", "Predictive Maintenance Engine")
	pmItem.DaysToCritical = f64(0.5)
	pmItem.CostIfIgnored = &models.CostRange{Min: 3000, Max: 9000, Avg: 6000}

	out, err := Process(cfg, []Input{{Item: sensorItem}, {Item: pmItem}}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 merged item, got %d", len(out))
	}

	merged := out[0]
	if merged.Priority != models.PriorityCritical {
		t.Errorf("expected CRITICAL, got %s (score %f)", merged.Priority, merged.PriorityScore)
	}
	if len(merged.Sources) != 2 {
		t.Errorf("expected both sources, got %v", merged.Sources)
	}
	if merged.DaysToCritical == nil || *merged.DaysToCritical != 0.5 {
		t.Errorf("merged days_to_critical must be the minimum, got %v", merged.DaysToCritical)
	}
	if merged.CostIfIgnored == nil || merged.CostIfIgnored.Avg != 6000 {
		t.Errorf("expected the primary's cost to survive, got %v", merged.CostIfIgnored)
	}
}

func TestProcess_MergedDaysIsMinimumAcrossAll(t *testing.T) {
	cfg := config.DefaultConfig()

	a := item("T001", "transmission", "Sensor Health")
	a.DaysToCritical = f64(20)
	b := item("T001", "transmission", "DTC Analysis")
	b.DaysToCritical = f64(3)
	c := item("T001", "transmission", "Failure Correlation")

	out, err := Process(cfg, []Input{{Item: a}, {Item: b}, {Item: c}}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 item, got %d", len(out))
	}
	if out[0].DaysToCritical == nil || *out[0].DaysToCritical != 3 {
		t.Errorf("expected min days 3 ignoring nil, got %v", out[0].DaysToCritical)
	}
	// Three corroborating sources replace the description with a summary.
	if matched, _ := regexp.MatchString(`Multiple systems`, out[0].Description); !matched {
		t.Errorf("expected a multiple-systems summary, got %q", out[0].Description)
	}
}

func TestProcess_FleetItemsKeyedByCategory(t *testing.T) {
	cfg := config.DefaultConfig()

	a := item(models.FleetWideTruckID, "cooling_system", "Failure Correlation")
	a.Category = "engine"
	b := item(models.FleetWideTruckID, "cooling_system", "Failure Correlation")
	b.Category = "sensor"

	out, err := Process(cfg, []Input{{Item: a}, {Item: b}}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("fleet items in distinct categories must not merge, got %d", len(out))
	}
}

func TestPriorityScore_MonotoneInDays(t *testing.T) {
	cfg := config.DefaultConfig()

	prev := 101.0
	for _, days := range []float64{0, 1, 5, 10, 30, 90, 365} {
		in := Input{Item: item("T001", "transmission", "Sensor Health")}
		in.Item.DaysToCritical = f64(days)
		score := priorityScore(cfg, in)
		if score > prev {
			t.Errorf("score must not increase with days_to_critical: days=%f score=%f prev=%f", days, score, prev)
		}
		prev = score
	}
}

func TestPriorityScore_NoSignalsDefaultsToMedium(t *testing.T) {
	cfg := config.DefaultConfig()
	in := Input{Item: item("T001", "unknown_component", "Sensor Health")}
	if score := priorityScore(cfg, in); score != 50 {
		t.Errorf("expected default 50, got %f", score)
	}
}

func TestPriorityScore_AcceptsBothAnomalyScales(t *testing.T) {
	cfg := config.DefaultConfig()

	unit := Input{Item: item("T001", "unknown_component")}
	unit.AnomalyScore = f64(0.8)
	hundred := Input{Item: item("T001", "unknown_component")}
	hundred.AnomalyScore = f64(80)

	if a, b := priorityScore(cfg, unit), priorityScore(cfg, hundred); a != b {
		t.Errorf("0-1 and 0-100 scales must normalize identically: %f vs %f", a, b)
	}
}

func TestPriorityLabels(t *testing.T) {
	cases := []struct {
		score float64
		want  models.Priority
	}{
		{90, models.PriorityCritical},
		{85, models.PriorityCritical},
		{70, models.PriorityHigh},
		{50, models.PriorityMedium},
		{25, models.PriorityLow},
		{10, models.PriorityNone},
	}
	for _, tc := range cases {
		if got := priorityLabel(tc.score); got != tc.want {
			t.Errorf("score %f: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestActionTypeDerivation(t *testing.T) {
	cases := []struct {
		priority models.Priority
		days     *float64
		want     models.ActionType
	}{
		{models.PriorityCritical, f64(0.5), models.ActionStopImmediately},
		{models.PriorityCritical, f64(3), models.ActionScheduleThisWeek},
		{models.PriorityCritical, nil, models.ActionScheduleThisWeek},
		{models.PriorityHigh, nil, models.ActionScheduleThisWeek},
		{models.PriorityMedium, nil, models.ActionScheduleThisMonth},
		{models.PriorityLow, nil, models.ActionMonitor},
		{models.PriorityNone, nil, models.ActionNone},
	}
	for _, tc := range cases {
		if got := actionTypeFor(tc.priority, tc.days); got != tc.want {
			t.Errorf("%s/%v: expected %s, got %s", tc.priority, tc.days, tc.want, got)
		}
	}
}

func TestGenerateActionID_FormatAndUniqueness(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^ACT-20250615-[0-9a-f]{8}$`)

	seen := make(map[string]bool)
	for range 200 {
		id, err := generateActionID(now)
		if err != nil {
			t.Fatal(err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("bad id format %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestBestSource_EmptyIsUnknown(t *testing.T) {
	cfg := config.DefaultConfig()
	if got := bestSource(cfg, nil); got != "Unknown" {
		t.Errorf("expected Unknown, got %s", got)
	}
	if got := bestSource(cfg, []string{"Driver Scoring", "Failure Correlation"}); got != "Failure Correlation" {
		t.Errorf("expected the heavier source, got %s", got)
	}
}
