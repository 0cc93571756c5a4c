// Package session manages the duplex streaming connection to the voice bot
// backend.
//
// A [Session] dials a WebSocket at <ws_url>/<session_id>, demultiplexes
// inbound messages into [protocol.Event] values, and carries outbound PCM
// frames and chat messages through a bounded send queue. Its lifecycle is the
// pure state machine in [Next]; every change is reported to the registered
// state handler in the order it happened.
//
// There is no automatic reconnection: when the transport drops the session
// becomes disconnected and the caller decides what to do.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/voxchat/internal/observe"
	"github.com/MrWong99/voxchat/pkg/audio"
	"github.com/MrWong99/voxchat/pkg/protocol"
)

// Sentinel errors.
var (
	// ErrConnection wraps dial failures and transport drops.
	ErrConnection = errors.New("session: connection failed")

	// ErrNotConnected is returned by sends while not connected.
	ErrNotConnected = errors.New("session: not connected")

	// ErrAlreadyOpen is returned by Open unless the session is disconnected.
	ErrAlreadyOpen = errors.New("session: already open")

	// ErrSendQueueFull is returned when an outbound message is dropped
	// because the write goroutine has fallen behind.
	ErrSendQueueFull = errors.New("session: send queue full")
)

const (
	// defaultSendQueue is the number of outbound messages buffered before
	// sends are dropped. 64 frames is about four seconds of microphone audio.
	defaultSendQueue = 64

	// defaultReadLimit bounds a single inbound message. Speech segments are
	// complete audio files, well above the library's 32 KiB default.
	defaultReadLimit = 16 << 20
)

// StateChange describes one lifecycle transition.
type StateChange struct {
	From State
	To   State

	// Err is set when the transition was caused by a failure. It wraps
	// [ErrConnection].
	Err error
}

// Option configures a [Session] during construction.
type Option func(*Session)

// WithSchema sets the wire schema for text messages. Default: [protocol.DefaultSchema].
func WithSchema(s protocol.Schema) Option {
	return func(sess *Session) {
		sess.schema = s
	}
}

// WithEventHandler registers fn to receive inbound events. fn is called from
// the single read goroutine, strictly in arrival order, and should return
// quickly.
func WithEventHandler(fn func(protocol.Event)) Option {
	return func(s *Session) {
		s.onEvent = fn
	}
}

// WithStateHandler registers fn to receive lifecycle transitions. Calls are
// serialised and ordered. fn must not call Open or Close.
func WithStateHandler(fn func(StateChange)) Option {
	return func(s *Session) {
		s.onState = fn
	}
}

// WithHTTPClient sets the client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		s.httpClient = c
	}
}

// WithHeader adds headers to the handshake request.
func WithHeader(h http.Header) Option {
	return func(s *Session) {
		s.header = h
	}
}

// WithSendQueue sets the outbound queue capacity.
func WithSendQueue(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.sendQueue = n
		}
	}
}

// WithReadLimit sets the maximum inbound message size in bytes.
func WithReadLimit(n int64) Option {
	return func(s *Session) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// outbound is one queued message.
type outbound struct {
	typ  websocket.MessageType
	data []byte
}

// Session is a streaming connection. All exported methods are safe for
// concurrent use.
type Session struct {
	baseURL    string
	schema     protocol.Schema
	onEvent    func(protocol.Event)
	onState    func(StateChange)
	httpClient *http.Client
	header     http.Header
	sendQueue  int
	readLimit  int64
	metrics    *observe.Metrics
	log        *slog.Logger

	mu        sync.Mutex
	state     State
	gen       uint64 // bumped by every Open; a dial only installs its conn if still current
	sessionID string
	conn      *websocket.Conn
	out       chan outbound
	done      chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	emitMu sync.Mutex // held while the state handler runs so changes are delivered in order
}

// New creates a disconnected session that will dial beneath wsURL.
func New(wsURL string, opts ...Option) *Session {
	s := &Session{
		baseURL:   strings.TrimRight(wsURL, "/"),
		schema:    protocol.DefaultSchema,
		sendQueue: defaultSendQueue,
		readLimit: defaultReadLimit,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// URL returns the endpoint for sessionID.
func (s *Session) URL(sessionID string) string {
	return s.baseURL + "/" + url.PathEscape(sessionID)
}

// Open dials the backend for sessionID and starts the read and write
// goroutines. It blocks until the connection is established or has failed;
// ctx bounds the dial only.
func (s *Session) Open(ctx context.Context, sessionID string) (err error) {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrConnection)
	}

	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.sessionID = sessionID
	s.gen++
	gen := s.gen
	s.transitionLocked(EventOpen, nil)

	ctx, span := observe.StartSpan(observe.WithSession(ctx, sessionID), observe.SpanSessionOpen,
		attribute.String("server.address", s.baseURL))
	defer func() { observe.EndSpan(span, err) }()

	u := s.URL(sessionID)
	start := time.Now()
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPClient: s.httpClient,
		HTTPHeader: s.header,
	})

	s.mu.Lock()
	if s.gen != gen || s.state != StateConnecting {
		// Close was called while dialling, and possibly another Open after it.
		s.mu.Unlock()
		if conn != nil {
			_ = conn.CloseNow()
		}
		return fmt.Errorf("%w: closed while connecting", ErrConnection)
	}
	if err != nil {
		err = fmt.Errorf("%w: dial %s: %w", ErrConnection, u, err)
		s.transitionLocked(EventDialFailed, err)
		return err
	}

	conn.SetReadLimit(s.readLimit)
	runCtx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.out = make(chan outbound, s.sendQueue)
	s.done = make(chan struct{})
	s.cancel = cancel
	s.wg.Add(2)
	go s.readLoop(runCtx, conn)
	go s.writeLoop(runCtx, conn, s.out, s.done)

	s.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.ActiveSessions.Add(ctx, 1)
	s.transitionLocked(EventDialed, nil)
	s.log.Info("session: connected", "session_id", sessionID)
	return nil
}

// Close shuts the connection down. Queued sends are abandoned. Closing a
// disconnected session is a no-op. Close must not be called from the event
// handler.
func (s *Session) Close() error {
	s.mu.Lock()
	switch s.state {
	case StateDisconnected:
		s.mu.Unlock()
		return nil
	case StateConnecting:
		// Open notices the state change when its dial returns.
		s.transitionLocked(EventClose, nil)
		return nil
	}

	conn, cancel := s.teardownLocked()
	s.transitionLocked(EventClose, nil)

	if err := conn.Close(websocket.StatusNormalClosure, "client closed"); err != nil {
		s.log.Debug("session: close handshake", "err", err)
	}
	cancel()
	s.wg.Wait()
	s.log.Info("session: closed", "session_id", s.SessionID())
	return nil
}

// SendFrame queues one PCM frame. It never blocks: if the queue is full the
// frame is dropped with [ErrSendQueueFull].
func (s *Session) SendFrame(frame audio.AudioFrame) error {
	return s.enqueue(outbound{typ: websocket.MessageBinary, data: frame.Data})
}

// SendChat queues a typed chat message.
func (s *Session) SendChat(text string) error {
	b, err := s.schema.EncodeChat(text)
	if err != nil {
		return err
	}
	return s.enqueue(outbound{typ: websocket.MessageText, data: b})
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the session is connected.
func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

// SessionID returns the id passed to the most recent Open.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) enqueue(m outbound) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	out, done := s.out, s.done
	s.mu.Unlock()

	select {
	case <-done:
		return ErrNotConnected
	default:
	}
	select {
	case out <- m:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// transitionLocked applies e, releases s.mu, and reports the change. Must be
// called with s.mu held; returns with it released.
func (s *Session) transitionLocked(e Event, cause error) {
	from := s.state
	to, ok := Next(from, e)
	if !ok {
		s.mu.Unlock()
		s.log.Error("session: invalid transition", "state", from.String(), "event", e.String())
		return
	}
	s.state = to

	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	s.log.Debug("session: state", "from", from.String(), "to", to.String(), "event", e.String())
	if s.onState != nil {
		s.onState(StateChange{From: from, To: to, Err: cause})
	}
}

// teardownLocked detaches the live connection and stops the write loop. The
// caller closes the connection and then calls cancel to stop the read loop.
// Must be called with s.mu held while connected.
func (s *Session) teardownLocked() (*websocket.Conn, context.CancelFunc) {
	conn, cancel := s.conn, s.cancel
	s.conn, s.cancel = nil, nil
	close(s.done)
	s.metrics.ActiveSessions.Add(context.Background(), -1)
	return conn, cancel
}

// dropped handles a transport failure observed by either loop.
func (s *Session) dropped(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn || s.state != StateConnected {
		// Already closed or replaced.
		s.mu.Unlock()
		return
	}
	_, cancel := s.teardownLocked()
	_ = conn.CloseNow()
	cancel()

	cause := fmt.Errorf("%w: %w", ErrConnection, err)
	s.log.Warn("session: connection lost", "session_id", s.sessionID, "err", err)
	s.transitionLocked(EventDropped, cause)
}

// readLoop demultiplexes inbound messages until the connection fails.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			s.dropped(conn, err)
			return
		}

		var ev protocol.Event
		if typ == websocket.MessageBinary {
			ev = protocol.AudioEvent(msg)
		} else {
			var ok bool
			ev, ok, err = s.schema.Decode(msg)
			if err != nil {
				s.log.Warn("session: ignoring malformed message", "err", err)
				continue
			}
			if !ok {
				s.log.Debug("session: ignoring unhandled message", "bytes", len(msg))
				continue
			}
		}

		s.metrics.RecordInboundEvent(ctx, string(ev.Kind))
		if s.onEvent != nil {
			s.onEvent(ev)
		}
	}
}

// writeLoop drains the send queue until done is closed.
func (s *Session) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan outbound, done <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-done:
			return
		case m := <-out:
			if err := conn.Write(ctx, m.typ, m.data); err != nil {
				s.dropped(conn, err)
				return
			}
		}
	}
}
