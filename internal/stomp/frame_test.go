package stomp

import (
	"bytes"
	"testing"
	"time"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{
			"subscribe",
			NewFrame(CmdSubscribe, "id", "sub-1", "destination", "/user/queue/messages", "ack", "auto"),
		},
		{
			"send with body",
			&Frame{
				Command: CmdSend,
				Headers: []Header{{"destination", "/app/chat.send"}, {"content-type", "application/json"}},
				Body:    []byte(`{"receiverId":34,"content":"Kumusta?"}`),
			},
		},
		{
			"message",
			&Frame{
				Command: CmdMessage,
				Headers: []Header{{"subscription", "sub-1"}, {"message-id", "1"}, {"destination", "/topic/presence"}},
				Body:    []byte(`{"userId":34,"online":true}`),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(Marshal(tt.frame))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got.Command != tt.frame.Command {
				t.Errorf("Command = %q, want %q", got.Command, tt.frame.Command)
			}
			for _, h := range tt.frame.Headers {
				if got.Header(h.Key) != h.Value {
					t.Errorf("Header(%q) = %q, want %q", h.Key, got.Header(h.Key), h.Value)
				}
			}
			if !bytes.Equal(got.Body, tt.frame.Body) {
				t.Errorf("Body = %q, want %q", got.Body, tt.frame.Body)
			}
		})
	}
}

func TestHeaderEscaping(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"colon", "a:b"},
		{"newline", "line1\nline2"},
		{"carriage return", "a\rb"},
		{"backslash", `a\b`},
		{"all together", "x:\\\n\r:y"},
		{"plain", "nothing special"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFrame(CmdSend, "destination", "/app/x", "custom", tt.value)
			got, err := Parse(Marshal(f))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got.Header("custom") != tt.value {
				t.Errorf("round-tripped header = %q, want %q", got.Header("custom"), tt.value)
			}
		})
	}
}

func TestUndefinedEscapeIsFatal(t *testing.T) {
	raw := []byte("SEND\ndestination:/app/x\nbad:a\\tb\n\n\x00")
	if _, err := Parse(raw); err == nil {
		t.Error("Parse() should reject undefined escape sequences")
	}
}

// TestConnectHeadersNotEscaped covers the STOMP 1.0 compatibility rule:
// CONNECT and CONNECTED headers pass through unescaped.
func TestConnectHeadersNotEscaped(t *testing.T) {
	f := NewFrame(CmdConnect, "accept-version", "1.2", "host", "localhost:8980")
	raw := Marshal(f)
	if !bytes.Contains(raw, []byte("host:localhost:8980\n")) {
		t.Errorf("CONNECT host header should not be escaped, got %q", raw)
	}
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	// First-colon split: value keeps the trailing port.
	if got.Header("host") != "localhost:8980" {
		t.Errorf("host = %q, want localhost:8980", got.Header("host"))
	}
}

func TestBodyWithNULUsesContentLength(t *testing.T) {
	f := &Frame{
		Command: CmdSend,
		Headers: []Header{{"destination", "/app/x"}},
		Body:    []byte("pre\x00post"),
	}
	got, err := Parse(Marshal(f))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !bytes.Equal(got.Body, f.Body) {
		t.Errorf("Body = %q, want %q", got.Body, f.Body)
	}
}

func TestParseHeartbeatMessage(t *testing.T) {
	for _, raw := range [][]byte{[]byte("\n"), []byte("\r\n"), []byte("\n\n")} {
		if _, err := Parse(raw); !IsHeartbeat(err) {
			t.Errorf("Parse(%q) error = %v, want heart-beat", raw, err)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty command", []byte("\x00")},
		{"no NUL terminator", []byte("SEND\ndestination:/x\n\nbody")},
		{"header without colon", []byte("SEND\nnocolon\n\n\x00")},
		{"short content-length", []byte("SEND\ncontent-length:10\n\nabc\x00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.raw); err == nil || IsHeartbeat(err) {
				t.Errorf("Parse(%q) error = %v, want hard error", tt.raw, err)
			}
		})
	}
}

func TestRepeatedHeaderFirstWins(t *testing.T) {
	raw := []byte("MESSAGE\nfoo:first\nfoo:second\n\n\x00")
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if f.Header("foo") != "first" {
		t.Errorf("Header(foo) = %q, want first", f.Header("foo"))
	}
}

func TestNegotiated(t *testing.T) {
	tests := []struct {
		name         string
		mine, theirs time.Duration
		want         time.Duration
	}{
		{"both equal", 10 * time.Second, 10 * time.Second, 10 * time.Second},
		{"server slower", 10 * time.Second, 30 * time.Second, 30 * time.Second},
		{"client slower", 30 * time.Second, 10 * time.Second, 30 * time.Second},
		{"client opted out", 0, 10 * time.Second, 0},
		{"server opted out", 10 * time.Second, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := negotiated(tt.mine, tt.theirs); got != tt.want {
				t.Errorf("negotiated(%v, %v) = %v, want %v", tt.mine, tt.theirs, got, tt.want)
			}
		})
	}
}

func TestParseHeartbeatHeader(t *testing.T) {
	x, y := parseHeartbeat("10000,5000")
	if x != 10*time.Second || y != 5*time.Second {
		t.Errorf("parseHeartbeat = %v, %v", x, y)
	}
	x, y = parseHeartbeat("")
	if x != 0 || y != 0 {
		t.Errorf("parseHeartbeat(empty) = %v, %v, want 0, 0", x, y)
	}
	x, y = parseHeartbeat("abc,def")
	if x != 0 || y != 0 {
		t.Errorf("parseHeartbeat(garbage) = %v, %v, want 0, 0", x, y)
	}
}
