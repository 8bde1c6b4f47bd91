package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/sessiongate"
)

func TestCounterDefsCoverEveryCounter(t *testing.T) {
	m := sessiongate.NewMetrics(sessiongate.MetricsConfig{Enabled: true})
	snap := m.Snapshot()

	seen := make(map[sessiongate.MetricID]bool, len(CounterDefs))
	names := make(map[string]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("metric %d defined twice", def.ID)
		}
		if names[def.Name] {
			t.Fatalf("name %s used twice", def.Name)
		}
		if !strings.HasPrefix(def.Name, "sessiongate_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %s", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}

	for id := range snap.Counters {
		if id == sessiongate.MetricAuditDropped {
			continue
		}
		if !seen[id] {
			t.Fatalf("counter %d has no export definition", id)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 0, 2, 0, 0, 0, 0, 3}))
	want := [8]uint64{1, 1, 3, 3, 3, 3, 3, 6}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if len(HistogramUpperBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatal("bucket bounds and suffixes disagree")
	}
}
