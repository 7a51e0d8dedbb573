package model

import (
	"testing"
	"time"
)

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"sending to sent", StatusSending, StatusSent, true},
		{"sending to failed", StatusSending, StatusFailed, true},
		{"sent to delivered", StatusSent, StatusDelivered, true},
		{"sent to read skips delivered", StatusSent, StatusRead, true},
		{"delivered to read", StatusDelivered, StatusRead, true},
		{"sending straight to delivered", StatusSending, StatusDelivered, false},
		{"sending straight to read", StatusSending, StatusRead, false},
		{"delivered back to sent", StatusDelivered, StatusSent, false},
		{"read back to delivered", StatusRead, StatusDelivered, false},
		{"failed to sent", StatusFailed, StatusSent, false},
		{"same state", StatusDelivered, StatusDelivered, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAdvance(tc.from, tc.to); got != tc.want {
				t.Errorf("CanAdvance(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestTerminalStates(t *testing.T) {
	all := []Status{StatusSending, StatusSent, StatusDelivered, StatusRead, StatusFailed}
	for _, terminal := range []Status{StatusRead, StatusFailed} {
		for _, to := range all {
			if CanAdvance(terminal, to) {
				t.Errorf("CanAdvance(%s, %s) = true, want terminal state to reject all moves", terminal, to)
			}
		}
	}
}

func TestTempID(t *testing.T) {
	now := time.UnixMilli(1717171717171)
	id := NewTempID(now)
	if id != "temp-1717171717171" {
		t.Errorf("NewTempID = %q, want temp-1717171717171", id)
	}
	if !IsTempID(id) {
		t.Errorf("IsTempID(%q) = false, want true", id)
	}
	if IsTempID("8412") {
		t.Error("IsTempID(8412) = true, want false for a server id")
	}
}

func TestRoomID(t *testing.T) {
	if got := FormatRoomID(42); got != "conv-42" {
		t.Errorf("FormatRoomID(42) = %q, want conv-42", got)
	}

	id, err := ParseRoomID("conv-42")
	if err != nil {
		t.Fatalf("ParseRoomID: %v", err)
	}
	if id != 42 {
		t.Errorf("ParseRoomID(conv-42) = %d, want 42", id)
	}

	for _, bad := range []string{"", "42", "conv-", "conv-abc", "conv--1", "room-42"} {
		if _, err := ParseRoomID(bad); err == nil {
			t.Errorf("ParseRoomID(%q): expected error", bad)
		}
	}
}
