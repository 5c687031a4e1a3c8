package core

import (
	"errors"
	"strings"
	"testing"
)

func TestParseCycle(t *testing.T) {
	tests := []struct {
		in      string
		want    Cycle
		wantErr bool
	}{
		{"Update", CycleUpdate, false},
		{"fixedupdate", CycleFixedUpdate, false},
		{"LATEUPDATE", CycleLateUpdate, false},
		{"tick", CycleTick, false},
		{"default", CycleDefault, false},
		{"render", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCycle(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownCycle) {
					t.Errorf("ParseCycle(%q) error = %v, want ErrUnknownCycle", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseCycle(%q) = (%s, %v), want %s", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestCycle_TextRoundTrip(t *testing.T) {
	var c Cycle
	if err := c.UnmarshalText([]byte("LateUpdate")); err != nil || c != CycleLateUpdate {
		t.Fatalf("UnmarshalText = (%s, %v)", c, err)
	}
	if _, err := Cycle(42).MarshalText(); err == nil {
		t.Error("MarshalText on an invalid cycle should fail")
	}
	if !strings.HasPrefix(Cycle(42).String(), "Cycle(") {
		t.Errorf("String() = %q for invalid cycle", Cycle(42).String())
	}
	if len(Cycles()) != int(numCycles) {
		t.Errorf("Cycles() has %d entries, want %d", len(Cycles()), numCycles)
	}
}

func TestFormatLogLine(t *testing.T) {
	got := formatLogLine(LevelWarn, "drain failed", []Field{F("cycle", "Update"), F("n", 2)})
	want := "[WARN] drain failed {cycle: Update, n: 2}"
	if got != want {
		t.Errorf("formatLogLine = %q, want %q", got, want)
	}
	if ParseLogLevel("warning") != LevelWarn || ParseLogLevel("bogus") != LevelInfo {
		t.Error("ParseLogLevel mapping wrong")
	}
}
