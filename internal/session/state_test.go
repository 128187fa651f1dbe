package session

import "testing"

func TestAllowedTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Loading{}, Loaded{}, true},
		{Loading{}, Stopping{}, true},
		{Loading{}, Error{}, true},
		{Loaded{}, Loaded{}, true},
		{Loaded{}, Stopping{}, true},
		{Loaded{}, Loading{}, false},
		{Stopping{}, Loaded{}, false},
		{Stopping{}, SessionStopped{}, true},
		{Stopping{}, Error{}, true},
		{SessionStopped{}, Loading{}, false},
		{SessionStopped{}, Error{}, false},
		{Error{}, Loaded{}, false},
		{Error{}, SessionStopped{}, false},
	}
	for _, tt := range tests {
		if got := allowed(tt.from, tt.to); got != tt.want {
			t.Errorf("allowed(%s -> %s) = %v, want %v", Name(tt.from), Name(tt.to), got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []State{Loading{}, Loaded{}, Stopping{}} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", Name(s))
		}
	}
	for _, s := range []State{SessionStopped{}, Error{}} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", Name(s))
		}
	}
}
