package domain

import "testing"

func TestStatusCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusWaiting, StatusPending, true},
		{StatusWaiting, StatusConfirmed, true},
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusComplete, true},
		{StatusWaiting, StatusFailed, true},
		{StatusPending, StatusFailed, true},
		{StatusConfirmed, StatusFailed, true},
		{StatusPending, StatusWaiting, false},
		{StatusConfirmed, StatusPending, false},
		{StatusComplete, StatusFailed, false},
		{StatusComplete, StatusConfirmed, false},
		{StatusFailed, StatusPending, false},
		{StatusFailed, StatusComplete, false},
		{StatusPending, StatusPending, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusSettled(t *testing.T) {
	settled := []Status{StatusConfirmed, StatusComplete, StatusFailed}
	for _, s := range settled {
		if !s.Settled() {
			t.Errorf("expected %s to be settled", s)
		}
	}
	for _, s := range []Status{StatusWaiting, StatusPending} {
		if s.Settled() {
			t.Errorf("did not expect %s to be settled", s)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusConfirmed.Terminal() {
		t.Error("Confirmed must not be terminal; a ledger confirm still completes it")
	}
	if !StatusComplete.Terminal() || !StatusFailed.Terminal() {
		t.Error("Complete and Failed are terminal")
	}
}
