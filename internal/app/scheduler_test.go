package app

import (
	"testing"
	"time"
)

func TestSnapshotRefreshSpec(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		want     string
	}{
		{name: "one minute", interval: 60 * time.Second, want: "@every 1m0s"},
		{name: "thirty seconds", interval: 30 * time.Second, want: "@every 30s"},
		{name: "zero falls back", interval: 0, want: "@every 1m0s"},
		{name: "negative falls back", interval: -time.Second, want: "@every 1m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snapshotRefreshSpec(tt.interval); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
