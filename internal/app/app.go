// Package app wires the voxchat subsystems into a running client.
//
// The Client owns the full lifecycle: New builds the session, capture
// pipeline, playback queue and transcript assembler, Run executes the event
// loop, and Close tears everything down in order.
//
// Inbound events and session state changes are funnelled through one channel
// and applied by the single goroutine running [Client.Run], so the
// transcript assembler never sees concurrent callers. Front-ends observe the
// client through [Client.Updates] and read the conversation with
// [Client.Conversation].
//
// For testing, inject mock devices through [Devices] and a fake backend via
// the config URLs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxchat/internal/bootstrap"
	"github.com/MrWong99/voxchat/internal/config"
	"github.com/MrWong99/voxchat/internal/observe"
	"github.com/MrWong99/voxchat/internal/session"
	"github.com/MrWong99/voxchat/internal/transcript"
	"github.com/MrWong99/voxchat/pkg/audio"
	"github.com/MrWong99/voxchat/pkg/audio/capture"
	"github.com/MrWong99/voxchat/pkg/audio/codec"
	"github.com/MrWong99/voxchat/pkg/audio/playback"
	"github.com/MrWong99/voxchat/pkg/protocol"
)

// ErrEmptyMessage is returned by [Client.SendChat] for blank input.
var ErrEmptyMessage = errors.New("app: empty message")

// eventBuffer is the capacity of the event loop channel.
const eventBuffer = 256

// updateBuffer is the capacity of the update channel. Updates beyond it are
// dropped; [Client.Conversation] stays authoritative.
const updateBuffer = 64

// Devices holds the host audio bindings. Nil means the driver is disabled.
// Populated by main.go via the config registry.
type Devices struct {
	Capture audio.CaptureDevice
	Output  audio.OutputSink
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*Client)

// WithDecoder overrides the segment decoder selected by audio.segment_codec.
func WithDecoder(d codec.Decoder) Option {
	return func(c *Client) { c.decoder = d }
}

// WithHTTPClient sets the HTTP client used for the bootstrap call and the
// streaming handshake.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics sets the metrics recorder for every subsystem.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger for every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client is one voice chat client. All exported methods are safe for
// concurrent use.
type Client struct {
	cfg        *config.Config
	decoder    codec.Decoder
	httpClient *http.Client
	metrics    *observe.Metrics
	log        *slog.Logger

	boot    *bootstrap.Client
	sess    *session.Session
	floor   *audio.Floor
	queue   *playback.Queue
	capture *capture.Pipeline
	asm     *transcript.Assembler
	output  audio.OutputSink

	events  chan any
	updates chan Update
	done    chan struct{}

	closeOnce sync.Once
}

// chatSent is posted to the event loop after a typed message was queued.
type chatSent struct{ text string }

// captureFailed is posted when the microphone stream ends with an error.
type captureFailed struct{ err error }

// New builds a Client from cfg. devices may be nil or partially filled;
// missing drivers are replaced by [NoCapture] and a [DiscardSink].
func New(cfg *config.Config, devices *Devices, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:     cfg,
		events:  make(chan any, eventBuffer),
		updates: make(chan Update, updateBuffer),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if devices == nil {
		devices = &Devices{}
	}
	if devices.Capture == nil {
		devices.Capture = NoCapture{}
	}
	if devices.Output == nil {
		devices.Output = NewDiscardSink(audio.Format{SampleRate: cfg.Audio.OutputSampleRate, Channels: 1})
	}
	c.output = devices.Output

	schema, err := protocol.ParseSchema(cfg.Server.WireSchema)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if c.decoder == nil {
		c.decoder, err = codec.New(cfg.Audio.SegmentCodec, cfg.Audio.SegmentSampleRate)
		if err != nil {
			return nil, fmt.Errorf("app: segment decoder: %w", err)
		}
	}

	bootOpts := []bootstrap.Option{
		bootstrap.WithTimeout(time.Duration(cfg.Server.RequestTimeoutMs) * time.Millisecond),
		bootstrap.WithMetrics(c.metrics),
	}
	sessOpts := []session.Option{
		session.WithSchema(schema),
		session.WithEventHandler(c.onEvent),
		session.WithStateHandler(c.onState),
		session.WithMetrics(c.metrics),
		session.WithLogger(c.log),
		session.WithHeader(http.Header{"X-Client-Instance": []string{uuid.NewString()}}),
	}
	if c.httpClient != nil {
		bootOpts = append(bootOpts, bootstrap.WithHTTPClient(c.httpClient))
		sessOpts = append(sessOpts, session.WithHTTPClient(c.httpClient))
	}
	c.boot = bootstrap.New(cfg.Server.APIURL, bootOpts...)
	c.sess = session.New(cfg.Server.WSURL, sessOpts...)

	c.floor = &audio.Floor{}
	c.floor.OnRelease(func() { c.publish(Update{Kind: UpdateTurnPlayed}) })

	c.queue = playback.New(devices.Output, c.decoder, c.floor,
		playback.WithRate(cfg.Audio.PlaybackRate),
		playback.WithMetrics(c.metrics),
		playback.WithLogger(c.log),
	)
	c.capture = capture.New(devices.Capture, c.sess, c.floor,
		capture.WithChunkSize(cfg.Audio.ChunkSize),
		capture.WithSampleRate(cfg.Audio.SampleRate),
		capture.WithProcessing(config.Enabled(cfg.Capture.EchoCancellation), config.Enabled(cfg.Capture.NoiseSuppression)),
		capture.WithErrorHandler(func(err error) { c.post(captureFailed{err}) }),
		capture.WithMetrics(c.metrics),
		capture.WithLogger(c.log),
	)
	c.asm = transcript.NewAssembler(&transcript.Log{}, c.queue.StreamEnded)
	return c, nil
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Connect registers username with the backend and opens the streaming
// session. Failures are also published as [UpdateError].
func (c *Client) Connect(ctx context.Context, username string) error {
	if c.sess.State() != session.StateDisconnected {
		return session.ErrAlreadyOpen
	}
	id, err := c.boot.SetUsername(ctx, username)
	if err != nil {
		c.publish(Update{Kind: UpdateError, Err: err})
		return err
	}
	// Dial failures reach the front-end through the state change.
	return c.sess.Open(ctx, id)
}

// Disconnect stops recording and closes the streaming session. Queued
// playback continues, and the floor returns to the microphone once it has
// drained.
func (c *Client) Disconnect() error {
	if err := c.StopRecording(); err != nil {
		c.log.Warn("app: stop recording", "err", err)
	}
	return c.sess.Close()
}

// Run processes inbound events and state changes until ctx is cancelled or
// the client is closed. It must be called exactly once.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// Close disconnects, stops capture, and waits for the segment on air to
// finish. Safe to call more than once.
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.capture.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("app: stop capture: %w", err))
		}
		if err := c.sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close session: %w", err))
		}
		if err := c.queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close playback: %w", err))
		}
		if err := c.output.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close output: %w", err))
		}
	})
	return errors.Join(errs...)
}

// ─── Commands ────────────────────────────────────────────────────────────────

// StartRecording begins streaming microphone audio. It requires a connected
// session.
func (c *Client) StartRecording(ctx context.Context) error {
	if !c.sess.Connected() {
		return session.ErrNotConnected
	}
	if err := c.capture.Start(ctx); err != nil {
		return err
	}
	c.publish(Update{Kind: UpdateRecording, Recording: true})
	return nil
}

// StopRecording releases the microphone. It is a no-op when not recording.
func (c *Client) StopRecording() error {
	if !c.capture.Recording() {
		return nil
	}
	err := c.capture.Stop()
	c.publish(Update{Kind: UpdateRecording, Recording: false})
	return err
}

// SendChat sends a typed message. On success it is added to the
// conversation as a sealed user entry.
func (c *Client) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	// The reply belongs to a new turn; clear before it can arrive.
	c.queue.BeginTurn()
	if err := c.sess.SendChat(text); err != nil {
		return err
	}
	c.post(chatSent{text})
	return nil
}

// ApplyConfig hot-applies the reloadable fields of cfg.
func (c *Client) ApplyConfig(d config.ConfigDiff) {
	if d.PlaybackRateChanged {
		c.queue.SetRate(d.NewPlaybackRate)
		c.log.Info("app: playback rate changed", "rate", d.NewPlaybackRate)
	}
	for _, section := range d.RestartRequired {
		c.log.Warn("app: config change requires restart", "section", section)
	}
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Updates returns the channel of front-end notifications.
func (c *Client) Updates() <-chan Update { return c.updates }

// Conversation returns a snapshot of the conversation log.
func (c *Client) Conversation() []transcript.Entry { return c.asm.Log().Entries() }

// Connected reports whether the streaming session is up.
func (c *Client) Connected() bool { return c.sess.Connected() }

// SessionState returns the streaming session state.
func (c *Client) SessionState() session.State { return c.sess.State() }

// Recording reports whether the microphone is streaming.
func (c *Client) Recording() bool { return c.capture.Recording() }

// Level returns the input level of the last captured frame.
func (c *Client) Level() (peak, rms float64) { return c.capture.Level() }

// Playback returns the playback queue state.
func (c *Client) Playback() playback.State { return c.queue.State() }

// ─── Event loop ──────────────────────────────────────────────────────────────

// onEvent runs on the session read goroutine.
func (c *Client) onEvent(ev protocol.Event) { c.post(ev) }

// onState runs on whichever goroutine changed the session state.
func (c *Client) onState(ch session.StateChange) { c.post(ch) }

// post hands ev to the event loop. It blocks while the buffer is full so
// arrival order is preserved, and gives up once the client is closed.
func (c *Client) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case protocol.Event:
		if ev.Kind == protocol.KindAudio {
			seg := audio.Segment{ID: uuid.NewString(), Data: ev.Audio, Received: time.Now()}
			c.log.Debug("app: segment received", "segment_id", seg.ID, "bytes", len(seg.Data))
			c.queue.Enqueue(seg)
			return
		}
		if ev.Kind == protocol.KindTranscriptFinal {
			c.queue.BeginTurn()
		}
		if c.asm.Apply(ev) {
			c.publishTranscript()
		}

	case chatSent:
		c.asm.Log().AppendSealed(transcript.RoleUser, ev.text)
		c.publishTranscript()

	case session.StateChange:
		c.handleState(ctx, ev)

	case captureFailed:
		observe.Logger(ctx).Error("app: microphone failed", "err", ev.err)
		c.publish(Update{Kind: UpdateError, Err: ev.err})
		c.publish(Update{Kind: UpdateRecording, Recording: false})
	}
}

func (c *Client) handleState(ctx context.Context, ch session.StateChange) {
	log := observe.Logger(observe.WithSession(ctx, c.sess.SessionID())).With("state", ch.To.String())
	switch ch.To {
	case session.StateConnecting:
		log.Debug("app: connecting")
		c.publish(Update{Kind: UpdateConnecting})
	case session.StateConnected:
		log.Info("app: connected")
		c.publish(Update{Kind: UpdateConnected, SessionID: c.sess.SessionID()})
	case session.StateDisconnected:
		if ch.Err != nil {
			log.Warn("app: disconnected", "err", ch.Err)
			c.publish(Update{Kind: UpdateError, Err: ch.Err})
		} else {
			log.Info("app: disconnected")
		}
		if c.capture.Recording() {
			if err := c.capture.Stop(); err != nil {
				log.Warn("app: stop recording", "err", err)
			}
			c.publish(Update{Kind: UpdateRecording, Recording: false})
		}
		// No tts_end will follow on this connection. Whatever is queued still
		// plays, then the floor goes back to the microphone.
		c.queue.StreamEnded()
		c.publish(Update{Kind: UpdateDisconnected, Err: ch.Err})
	}
}

func (c *Client) publishTranscript() {
	c.publish(Update{Kind: UpdateTranscript, Entries: c.asm.Log().Entries()})
}

// publish delivers u without blocking.
func (c *Client) publish(u Update) {
	select {
	case c.updates <- u:
	default:
		c.log.Debug("app: update dropped", "kind", u.Kind.String())
	}
}
