package stomp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrUnauthorized is returned by Dial when the server rejects the token.
var ErrUnauthorized = errors.New("stomp: unauthorized")

// ErrClosed is returned by writes after the connection shut down.
var ErrClosed = errors.New("stomp: connection closed")

const writeTimeout = 10 * time.Second

// Options tunes Dial.
type Options struct {
	// Token is sent as the bearer token on the upgrade request and as
	// the login header of the CONNECT frame.
	Token string
	// Heartbeat is the interval we offer to send and ask to receive.
	// Zero disables heart-beating.
	Heartbeat time.Duration
	// Host overrides the vhost in the CONNECT frame; defaults to the
	// URL host.
	Host string
}

// Client is one established STOMP session over a WebSocket.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	msgs chan *Frame

	mu     sync.Mutex
	err    error
	subSeq int

	done      chan struct{}
	closeOnce sync.Once

	// negotiated heart-beat intervals; zero means direction disabled
	hbOut time.Duration
	hbIn  time.Duration
}

// Dial opens the WebSocket, performs the CONNECT handshake and starts
// the read and heart-beat loops.
func Dial(ctx context.Context, rawURL string, opts Options) (*Client, error) {
	hdr := http.Header{}
	if opts.Token != "" {
		hdr.Set("Authorization", "Bearer "+opts.Token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, hdr)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: upgrade rejected", ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	host := opts.Host
	if host == "" {
		if u, perr := url.Parse(rawURL); perr == nil {
			host = u.Host
		}
	}
	hbMillis := int64(opts.Heartbeat / time.Millisecond)
	connect := NewFrame(CmdConnect,
		"accept-version", "1.2",
		"host", host,
		"heart-beat", fmt.Sprintf("%d,%d", hbMillis, hbMillis),
	)
	if opts.Token != "" {
		connect.Set("login", opts.Token)
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, Marshal(connect)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send CONNECT: %w", err)
	}

	_ = conn.SetReadDeadline(deadline)
	reply, err := readFrame(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read CONNECTED: %w", err)
	}
	switch reply.Command {
	case CmdConnected:
	case CmdError:
		_ = conn.Close()
		msg := reply.Header("message")
		if strings.Contains(strings.ToLower(msg), "unauthorized") {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return nil, fmt.Errorf("stomp: connect refused: %s", msg)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("stomp: expected CONNECTED, got %s", reply.Command)
	}

	sx, sy := parseHeartbeat(reply.Header("heart-beat"))
	c := &Client{
		conn:  conn,
		msgs:  make(chan *Frame, 64),
		done:  make(chan struct{}),
		hbOut: negotiated(opts.Heartbeat, sy),
		hbIn:  negotiated(opts.Heartbeat, sx),
	}
	_ = conn.SetReadDeadline(time.Time{})

	go c.readLoop()
	if c.hbOut > 0 {
		go c.heartbeatLoop()
	}
	return c, nil
}

// Messages delivers incoming MESSAGE frames.
func (c *Client) Messages() <-chan *Frame { return c.msgs }

// Closed is closed once the session is torn down, by Close or by a
// transport or server error.
func (c *Client) Closed() <-chan struct{} { return c.done }

// Err returns the failure that tore the session down, nil after a
// clean Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Subscribe registers for a destination and returns the subscription id.
func (c *Client) Subscribe(destination string) (string, error) {
	c.mu.Lock()
	c.subSeq++
	id := "sub-" + strconv.Itoa(c.subSeq)
	c.mu.Unlock()

	f := NewFrame(CmdSubscribe, "id", id, "destination", destination, "ack", "auto")
	if err := c.writeFrame(f); err != nil {
		return "", err
	}
	return id, nil
}

// Unsubscribe cancels a subscription by id.
func (c *Client) Unsubscribe(id string) error {
	return c.writeFrame(NewFrame(CmdUnsubscribe, "id", id))
}

// Send posts a body to a destination.
func (c *Client) Send(destination, contentType string, body []byte) error {
	f := NewFrame(CmdSend, "destination", destination, "content-type", contentType)
	f.Body = body
	return c.writeFrame(f)
}

// Close sends DISCONNECT best effort and tears the session down.
func (c *Client) Close() error {
	c.shut(nil, true)
	return nil
}

func (c *Client) writeFrame(f *Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, Marshal(f)); err != nil {
		c.shut(fmt.Errorf("write %s: %w", f.Command, err), false)
		return err
	}
	return nil
}

// shut tears the session down exactly once, recording the cause.
func (c *Client) shut(cause error, disconnect bool) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		if disconnect {
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.TextMessage, Marshal(NewFrame(CmdDisconnect)))
			c.writeMu.Unlock()
		}
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readLoop() {
	for {
		if c.hbIn > 0 {
			// Allow two missed server beats plus slack before giving up.
			_ = c.conn.SetReadDeadline(time.Now().Add(2*c.hbIn + time.Second))
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shut(fmt.Errorf("read: %w", err), false)
			return
		}
		f, err := Parse(data)
		if IsHeartbeat(err) {
			continue
		}
		if err != nil {
			c.shut(err, false)
			return
		}
		switch f.Command {
		case CmdMessage:
			select {
			case c.msgs <- f:
			case <-c.done:
				return
			}
		case CmdError:
			c.shut(fmt.Errorf("stomp: server error: %s", f.Header("message")), false)
			return
		default:
			// RECEIPT and anything else the broker may emit: ignored.
		}
	}
}

func (c *Client) heartbeatLoop() {
	tick := time.NewTicker(c.hbOut)
	defer tick.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-tick.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.TextMessage, []byte("\n"))
			c.writeMu.Unlock()
			if err != nil {
				c.shut(fmt.Errorf("heart-beat: %w", err), false)
				return
			}
		}
	}
}

// readFrame reads WebSocket messages until one carries a real frame,
// skipping heart-beats.
func readFrame(conn *websocket.Conn) (*Frame, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		f, err := Parse(data)
		if IsHeartbeat(err) {
			continue
		}
		return f, err
	}
}

// parseHeartbeat splits a "sx,sy" heart-beat header. Zero, zero when
// absent or malformed.
func parseHeartbeat(s string) (time.Duration, time.Duration) {
	sx, sy, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0
	}
	x, errX := strconv.ParseInt(strings.TrimSpace(sx), 10, 64)
	y, errY := strconv.ParseInt(strings.TrimSpace(sy), 10, 64)
	if errX != nil || errY != nil || x < 0 || y < 0 {
		return 0, 0
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond
}

// negotiated returns the effective interval for one direction: disabled
// when either side opted out, else the slower of the two offers.
func negotiated(mine, theirs time.Duration) time.Duration {
	if mine == 0 || theirs == 0 {
		return 0
	}
	if theirs > mine {
		return theirs
	}
	return mine
}
