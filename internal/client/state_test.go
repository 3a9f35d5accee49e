package client

import (
	"reflect"
	"testing"
)

func TestStateIsValid(t *testing.T) {
	valid := []State{
		StateDisconnected, StateConnecting, StateConnected,
		StateAuthenticating, StateAuthenticated, StateReconnecting,
	}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if State("bogus").IsValid() {
		t.Error("expected bogus state to be invalid")
	}
	if State("").IsValid() {
		t.Error("expected empty state to be invalid")
	}
}

func TestTransitionHappyPath(t *testing.T) {
	tests := []struct {
		name   string
		from   State
		in     connInput
		want   State
		wantFx []effect
	}{
		{
			name:   "dial from disconnected",
			from:   StateDisconnected,
			in:     connInput{event: evDial},
			want:   StateConnecting,
			wantFx: []effect{fxDial},
		},
		{
			name:   "transport opens",
			from:   StateConnecting,
			in:     connInput{event: evTransportOpen},
			want:   StateConnected,
			wantFx: []effect{fxSendAuth},
		},
		{
			name: "auth sent",
			from: StateConnected,
			in:   connInput{event: evAuthStarted},
			want: StateAuthenticating,
		},
		{
			name:   "first auth accepted",
			from:   StateAuthenticating,
			in:     connInput{event: evAuthOK},
			want:   StateAuthenticated,
			wantFx: []effect{fxFlushQueue, fxStartHeartbeat},
		},
		{
			name:   "auth accepted with prior session restores it before flushing",
			from:   StateAuthenticating,
			in:     connInput{event: evAuthOK, hasSession: true},
			want:   StateAuthenticated,
			wantFx: []effect{fxRestoreSession, fxFlushQueue, fxStartHeartbeat},
		},
		{
			name:   "retry timer fires",
			from:   StateReconnecting,
			in:     connInput{event: evRetryTimer},
			want:   StateConnecting,
			wantFx: []effect{fxDial},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fx := transition(tt.from, tt.in)
			if got != tt.want {
				t.Errorf("state = %s, want %s", got, tt.want)
			}
			if len(fx) != 0 || len(tt.wantFx) != 0 {
				if !reflect.DeepEqual(fx, tt.wantFx) {
					t.Errorf("effects = %v, want %v", fx, tt.wantFx)
				}
			}
		})
	}
}

func TestTransitionFailures(t *testing.T) {
	tests := []struct {
		name   string
		from   State
		in     connInput
		want   State
		wantFx []effect
	}{
		{
			name:   "abnormal close with budget reconnects",
			from:   StateAuthenticated,
			in:     connInput{event: evCloseAbnormal, budgetLeft: true},
			want:   StateReconnecting,
			wantFx: []effect{fxStopHeartbeat, fxScheduleReconnect},
		},
		{
			name:   "abnormal close with budget exhausted gives up",
			from:   StateAuthenticated,
			in:     connInput{event: evCloseAbnormal},
			want:   StateDisconnected,
			wantFx: []effect{fxStopHeartbeat, fxRejectPending, fxClearQueue},
		},
		{
			name:   "abnormal close mid-auth with budget reconnects",
			from:   StateAuthenticating,
			in:     connInput{event: evCloseAbnormal, budgetLeft: true},
			want:   StateReconnecting,
			wantFx: []effect{fxStopHeartbeat, fxScheduleReconnect},
		},
		{
			name:   "dial failure with budget reconnects",
			from:   StateConnecting,
			in:     connInput{event: evTransportFail, budgetLeft: true},
			want:   StateReconnecting,
			wantFx: []effect{fxScheduleReconnect},
		},
		{
			name:   "auth rejection never reconnects",
			from:   StateAuthenticating,
			in:     connInput{event: evAuthRejected, budgetLeft: true},
			want:   StateDisconnected,
			wantFx: []effect{fxStopHeartbeat, fxRejectPending, fxClearQueue, fxCloseTransport},
		},
		{
			name:   "normal close never reconnects",
			from:   StateAuthenticated,
			in:     connInput{event: evCloseNormal, budgetLeft: true},
			want:   StateDisconnected,
			wantFx: []effect{fxStopHeartbeat, fxCancelReconnect, fxRejectPending, fxClearQueue, fxCloseTransport},
		},
		{
			name:   "normal close while reconnecting cancels the retry",
			from:   StateReconnecting,
			in:     connInput{event: evCloseNormal},
			want:   StateDisconnected,
			wantFx: []effect{fxStopHeartbeat, fxCancelReconnect, fxRejectPending, fxClearQueue, fxCloseTransport},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fx := transition(tt.from, tt.in)
			if got != tt.want {
				t.Errorf("state = %s, want %s", got, tt.want)
			}
			if !reflect.DeepEqual(fx, tt.wantFx) {
				t.Errorf("effects = %v, want %v", fx, tt.wantFx)
			}
		})
	}
}

func TestTransitionIgnoresOutOfOrderEvents(t *testing.T) {
	// Events that do not apply to the current state must be no-ops
	cases := []struct {
		from State
		in   connInput
	}{
		{StateDisconnected, connInput{event: evAuthOK}},
		{StateDisconnected, connInput{event: evRetryTimer}},
		{StateDisconnected, connInput{event: evTransportOpen}},
		{StateAuthenticated, connInput{event: evDial}},
		{StateConnecting, connInput{event: evAuthOK}},
		{StateReconnecting, connInput{event: evCloseAbnormal, budgetLeft: true}},
	}
	for _, tc := range cases {
		got, fx := transition(tc.from, tc.in)
		if got != tc.from {
			t.Errorf("transition(%s, ev=%d) moved to %s, want no change", tc.from, tc.in.event, got)
		}
		if len(fx) != 0 {
			t.Errorf("transition(%s, ev=%d) produced effects %v, want none", tc.from, tc.in.event, fx)
		}
	}
}

func TestTransitionNormalCloseIdempotent(t *testing.T) {
	got, fx := transition(StateDisconnected, connInput{event: evCloseNormal})
	if got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
	if len(fx) != 0 {
		t.Errorf("effects = %v, want none", fx)
	}
}
