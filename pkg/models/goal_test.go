package models

import "testing"

func TestPriorityString(t *testing.T) {
	cases := []struct {
		priority Priority
		want     string
	}{
		{PriorityLow, "low"},
		{PriorityMedium, "medium"},
		{PriorityHigh, "high"},
		{PriorityCritical, "critical"},
	}
	for _, tc := range cases {
		if got := tc.priority.String(); got != tc.want {
			t.Errorf("Priority(%d).String() = %q, want %q", tc.priority, got, tc.want)
		}
	}
}

func TestParsePriorityRoundTrip(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if got := ParsePriority(p.String()); got != p {
			t.Errorf("ParsePriority(%q) = %v, want %v", p.String(), got, p)
		}
	}

	if got := ParsePriority("bogus"); got != PriorityMedium {
		t.Errorf("ParsePriority(bogus) = %v, want medium default", got)
	}
}

func TestGoalStatusIsTerminal(t *testing.T) {
	terminal := []GoalStatus{GoalStatusCompleted, GoalStatusFailed, GoalStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []GoalStatus{GoalStatusPending, GoalStatusPlanning, GoalStatusExecuting}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
