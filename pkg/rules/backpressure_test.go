// Copyright (c) Sony Research Inc. All rights reserved.

package rules

import (
	"testing"
	"time"

	"github.com/SonyResearch/metavision-driver/pkg/driver/stats"
)

func sample(state string, depth int, intervalEnd int64) Sample {
	return Sample{
		TakenAt:    time.Now(),
		State:      state,
		QueueDepth: depth,
		Report:     stats.Report{IntervalEnd: intervalEnd},
	}
}

func kinds(fs []Finding) map[string]bool {
	m := make(map[string]bool, len(fs))
	for _, f := range fs {
		m[f.Kind] = true
	}
	return m
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		before    Sample
		after     Sample
		wantKinds []string
	}{
		{
			name:      "Healthy pipeline",
			before:    sample("running", 0, 1_000_000),
			after:     sample("running", 1, 2_000_000),
			wantKinds: nil,
		},
		{
			name:      "Session not running",
			before:    sample("running", 0, 1_000_000),
			after:     sample("stopped", 0, 1_000_000),
			wantKinds: []string{"not_running"},
		},
		{
			name:      "Stalled report",
			before:    sample("running", 0, 5_000_000),
			after:     sample("running", 0, 5_000_000),
			wantKinds: []string{"stalled"},
		},
		{
			name:      "Queue depth growing",
			before:    sample("running", 10, 1_000_000),
			after:     sample("running", 40, 2_000_000),
			wantKinds: []string{"backpressure"},
		},
		{
			name:      "Small burst below threshold",
			before:    sample("running", 1, 1_000_000),
			after:     sample("running", 3, 2_000_000),
			wantKinds: nil,
		},
		{
			name:      "Stalled and backed up",
			before:    sample("running", 10, 1_000_000),
			after:     sample("running", 50, 1_000_000),
			wantKinds: []string{"stalled", "backpressure"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.before, tt.after)
			gotKinds := kinds(got)
			if len(got) != len(tt.wantKinds) {
				t.Fatalf("Evaluate returned %d findings %v, want %d", len(got), gotKinds, len(tt.wantKinds))
			}
			for _, k := range tt.wantKinds {
				if !gotKinds[k] {
					t.Errorf("missing finding kind %q in %v", k, gotKinds)
				}
			}
		})
	}
}
