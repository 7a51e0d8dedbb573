// Package stomp implements the subset of STOMP 1.2 the TANDER push
// channel speaks, framed over WebSocket messages: CONNECT/CONNECTED,
// SUBSCRIBE/UNSUBSCRIBE, SEND, MESSAGE, ERROR, DISCONNECT and
// heart-beats. One WebSocket message carries exactly one frame; a
// message of bare EOLs is a heart-beat.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Frame commands used by the client and the sandbox broker.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
)

// errHeartbeat marks a WebSocket message that carried only EOLs.
var errHeartbeat = errors.New("stomp: heart-beat")

// Header is a single frame header. Order is preserved; when a key
// repeats, the first occurrence wins on read, per the STOMP spec.
type Header struct {
	Key   string
	Value string
}

// Frame is a single STOMP frame.
type Frame struct {
	Command string
	Headers []Header
	Body    []byte
}

// NewFrame builds a frame from alternating key, value header pairs.
func NewFrame(command string, kv ...string) *Frame {
	f := &Frame{Command: command}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers = append(f.Headers, Header{Key: kv[i], Value: kv[i+1]})
	}
	return f
}

// Header returns the first value for key, or "".
func (f *Frame) Header(key string) string {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// Set appends a header.
func (f *Frame) Set(key, value string) {
	f.Headers = append(f.Headers, Header{Key: key, Value: value})
}

// escaped reports whether this command's headers use backslash escaping.
// CONNECT and CONNECTED are exempt for STOMP 1.0 compatibility.
func escaped(command string) bool {
	return command != CmdConnect && command != CmdConnected
}

func escapeHeader(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		case ':':
			b.WriteString(`\c`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescapeHeader(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", errors.New("stomp: trailing backslash in header")
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 'c':
			b.WriteByte(':')
		default:
			// Undefined escape sequences are fatal per the spec.
			return "", fmt.Errorf("stomp: undefined escape %q in header", `\`+string(s[i]))
		}
	}
	return b.String(), nil
}

// Marshal renders the frame as one WebSocket message payload. A
// content-length header is added for non-empty bodies so NUL bytes in
// the body survive.
func Marshal(f *Frame) []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')

	esc := escaped(f.Command)
	hasLength := false
	for _, h := range f.Headers {
		if h.Key == "content-length" {
			hasLength = true
		}
		if esc {
			b.WriteString(escapeHeader(h.Key))
			b.WriteByte(':')
			b.WriteString(escapeHeader(h.Value))
		} else {
			b.WriteString(h.Key)
			b.WriteByte(':')
			b.WriteString(h.Value)
		}
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 && !hasLength {
		b.WriteString("content-length:")
		b.WriteString(strconv.Itoa(len(f.Body)))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// Parse decodes one frame from a WebSocket message payload. Returns
// errHeartbeat when the message carried only EOLs.
func Parse(raw []byte) (*Frame, error) {
	// Leading EOLs between frames are allowed and heart-beats are bare EOLs.
	for len(raw) > 0 && (raw[0] == '\n' || raw[0] == '\r') {
		raw = raw[1:]
	}
	if len(raw) == 0 {
		return nil, errHeartbeat
	}

	line, rest, ok := cutLine(raw)
	if !ok {
		return nil, errors.New("stomp: missing end of command line")
	}
	f := &Frame{Command: string(line)}
	if f.Command == "" {
		return nil, errors.New("stomp: empty command")
	}

	esc := escaped(f.Command)
	for {
		line, rest, ok = cutLine(rest)
		if !ok {
			return nil, errors.New("stomp: missing end of headers")
		}
		if len(line) == 0 {
			break
		}
		idx := bytes.IndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("stomp: malformed header line %q", line)
		}
		key, value := string(line[:idx]), string(line[idx+1:])
		if esc {
			var err error
			if key, err = unescapeHeader(key); err != nil {
				return nil, err
			}
			if value, err = unescapeHeader(value); err != nil {
				return nil, err
			}
		}
		f.Headers = append(f.Headers, Header{Key: key, Value: value})
	}

	if lengthStr := f.Header("content-length"); lengthStr != "" {
		n, err := strconv.Atoi(lengthStr)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("stomp: bad content-length %q", lengthStr)
		}
		if len(rest) < n+1 {
			return nil, errors.New("stomp: body shorter than content-length")
		}
		if rest[n] != 0 {
			return nil, errors.New("stomp: frame not NUL terminated")
		}
		f.Body = append([]byte(nil), rest[:n]...)
		return f, nil
	}

	idx := bytes.IndexByte(rest, 0)
	if idx < 0 {
		return nil, errors.New("stomp: frame not NUL terminated")
	}
	f.Body = append([]byte(nil), rest[:idx]...)
	return f, nil
}

// cutLine splits raw at the first LF, tolerating an optional CR before it.
func cutLine(raw []byte) (line, rest []byte, ok bool) {
	idx := bytes.IndexByte(raw, '\n')
	if idx < 0 {
		return nil, raw, false
	}
	line = raw[:idx]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, raw[idx+1:], true
}

// IsHeartbeat reports whether err marks a heart-beat message.
func IsHeartbeat(err error) bool {
	return errors.Is(err, errHeartbeat)
}
