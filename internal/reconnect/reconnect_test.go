package reconnect

import (
	"context"
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{3, 5 * time.Second},
		{8, 15 * time.Second},
		{9, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := Delay(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: got %v want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestWait(t *testing.T) {
	if !Wait(context.Background(), 0, 0.001) {
		t.Fatalf("scaled wait did not complete")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Wait(ctx, 9, 1) {
		t.Fatalf("wait ignored cancelled context")
	}
}
