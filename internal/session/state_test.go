package session

import (
	"testing"
	"time"
)

func TestState_ReadTimeoutMatchesSpecTable(t *testing.T) {
	cases := []struct {
		s    state
		want time.Duration
	}{
		{stateAwaitingHandshake, 30 * time.Second},
		{stateAwaitingKeyExchange, 30 * time.Second},
		{stateAwaitingAuth, 60 * time.Second},
		{stateAuthenticated, 90 * time.Second},
		{stateClosing, 0},
	}
	for _, tc := range cases {
		t.Run(tc.s.String(), func(t *testing.T) {
			if got := tc.s.readTimeout(); got != tc.want {
				t.Errorf("%s.readTimeout() = %v, want %v", tc.s, got, tc.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	cases := map[state]string{
		stateAwaitingHandshake:   "AwaitingHandshake",
		stateAwaitingKeyExchange: "AwaitingKeyExchange",
		stateAwaitingAuth:        "AwaitingAuth",
		stateAuthenticated:       "Authenticated",
		stateClosing:             "Closing",
		state(99):                "Unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("state(%d).String() = %q, want %q", s, got, want)
		}
	}
}
