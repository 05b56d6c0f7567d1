package internaldefs

import (
	"math"
	"strings"
	"testing"

	goToken "github.com/MrEthical07/goToken"
)

func TestEveryCounterIsDefinedOnce(t *testing.T) {
	seen := map[goToken.MetricID]bool{}
	names := map[string]bool{}
	for _, def := range CounterDefs {
		if seen[def.ID] || names[def.Name] {
			t.Fatalf("duplicate definition: %+v", def)
		}
		seen[def.ID] = true
		names[def.Name] = true
		if !strings.HasPrefix(def.Name, "gotoken_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %q", def.Name)
		}
	}
	if len(CounterDefs)+len(HistogramDefs) != int(goToken.MetricRefreshLatency)+1 {
		t.Fatalf("definitions do not cover every metric id")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	raw := NormalizeBuckets([]uint64{1, 2, 3})
	got := CumulativeBuckets(raw)
	want := [BucketCount]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestApproxSum(t *testing.T) {
	raw := [BucketCount]uint64{2, 0, 0, 0, 0, 0, 0, 1}
	if got := ApproxSum(raw); math.Abs(got-1.01) > 1e-9 {
		t.Fatalf("unexpected sum %v", got)
	}
}
