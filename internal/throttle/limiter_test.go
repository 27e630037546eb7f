package throttle

import (
	"testing"
	"time"
)

func TestAllowDropsWithinWindow(t *testing.T) {
	l := New(3 * time.Second)
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name string
		at   time.Duration
		want bool
	}{
		{"first call", 0, true},
		{"inside window", time.Second, false},
		{"still inside", 2900 * time.Millisecond, false},
		{"after window", 3100 * time.Millisecond, true},
		{"inside next window", 4 * time.Second, false},
	}
	for _, tt := range tests {
		if got := l.AllowID(5, now.Add(tt.at)); got != tt.want {
			t.Errorf("%s: Allow = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(3 * time.Second)
	now := time.Unix(1_700_000_000, 0)

	if !l.AllowID(1, now) {
		t.Fatal("first call for 1 denied")
	}
	if !l.AllowID(2, now) {
		t.Error("first call for 2 denied by limit on 1")
	}
	if l.AllowID(1, now.Add(time.Millisecond)) {
		t.Error("second call for 1 allowed inside window")
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	l := New(0)
	for range 5 {
		if !l.Allow("k", time.Now()) {
			t.Fatal("nil limiter denied a call")
		}
	}
}
