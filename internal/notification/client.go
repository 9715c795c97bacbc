package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/trusttai/api/internal/sse"
)

const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// Dialer opens one event stream. The returned body yields SSE frames until
// it fails or is closed.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadCloser, error)
}

type DialerFunc func(ctx context.Context) (io.ReadCloser, error)

func (f DialerFunc) Dial(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

type Options struct {
	Dialer Dialer
	Store  *Store

	// MaxAttempts bounds consecutive reconnects after a failure. Zero
	// disables reconnecting.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// IdleTimeout closes a stream that has delivered nothing for this long.
	// Zero disables the check.
	IdleTimeout time.Duration

	OnStateChange  func(ConnectionState)
	OnNotification func(AdminNotification)

	Logger *slog.Logger

	// Overridable for tests.
	AfterFunc func(time.Duration, func()) Timer
	Now       func() time.Time
}

// ConnectionManager keeps a single event stream open and feeds decoded
// notifications into its Store.
type ConnectionManager struct {
	dialer         Dialer
	store          *Store
	maxAttempts    int
	idleTimeout    time.Duration
	onStateChange  func(ConnectionState)
	onNotification func(AdminNotification)
	log            *slog.Logger
	afterFunc      func(time.Duration, func()) Timer
	now            func() time.Time

	mu            sync.Mutex
	state         ConnectionState
	attempts      int
	backoff       *backoff.ExponentialBackOff
	seq           uint64 // bumped per connection attempt and on Stop
	cancel        context.CancelFunc
	body          io.ReadCloser
	retry         Timer
	lastMessageAt time.Time

	// State changes are queued under mu in the order they happen and handed
	// to onStateChange by one goroutine at a time.
	pending    []ConnectionState
	delivering bool
}

func NewConnectionManager(opts Options) *ConnectionManager {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialDelay
	bo.MaxInterval = opts.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = DefaultInitialDelay
	}
	if bo.MaxInterval <= 0 {
		bo.MaxInterval = DefaultMaxDelay
	}
	bo.Reset()

	m := &ConnectionManager{
		dialer:         opts.Dialer,
		store:          opts.Store,
		maxAttempts:    opts.MaxAttempts,
		idleTimeout:    opts.IdleTimeout,
		onStateChange:  opts.OnStateChange,
		onNotification: opts.OnNotification,
		log:            opts.Logger,
		afterFunc:      opts.AfterFunc,
		now:            opts.Now,
		state:          StateDisconnected,
		backoff:        bo,
	}
	if m.store == nil {
		m.store = NewStore(DefaultMaxNotifications)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With("component", "notification")
	if m.afterFunc == nil {
		m.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

func (m *ConnectionManager) Store() *Store {
	return m.store
}

// Start opens the stream. It is a no-op while a connection is being made or
// is open. Calling Start after reconnects were exhausted begins a fresh
// series of attempts.
func (m *ConnectionManager) Start() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.stopRetryLocked()
	m.attempts = 0
	m.backoff.Reset()
	m.connectLocked()
	m.mu.Unlock()

	m.flushStates()
}

// Stop closes the stream and cancels any pending reconnect.
func (m *ConnectionManager) Stop() {
	m.mu.Lock()
	m.seq++
	m.stopRetryLocked()
	m.closeTransportLocked()
	if m.state != StateDisconnected {
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()

	m.flushStates()
}

func (m *ConnectionManager) ConnectionStatus() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnectionManager) IsConnected() bool {
	return m.ConnectionStatus() == StateConnected
}

// LastMessageAt is when the most recent well-formed frame arrived.
func (m *ConnectionManager) LastMessageAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMessageAt
}

// connectLocked starts a dial. The previous transport must already be closed.
func (m *ConnectionManager) connectLocked() {
	m.seq++
	seq := m.seq
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.setStateLocked(StateConnecting)

	go m.run(ctx, seq)
}

func (m *ConnectionManager) run(ctx context.Context, seq uint64) {
	body, err := m.dialer.Dial(ctx)
	if err != nil {
		m.fail(seq, err)
		return
	}

	m.mu.Lock()
	if seq != m.seq {
		m.mu.Unlock()
		body.Close()
		return
	}
	m.body = body
	m.setStateLocked(StateConnected)
	m.attempts = 0
	m.backoff.Reset()
	m.mu.Unlock()

	m.log.Info("stream connected")
	m.flushStates()

	m.fail(seq, m.read(body))
}

// read consumes frames until the body fails. It always returns a non-nil
// error.
func (m *ConnectionManager) read(body io.ReadCloser) error {
	var idle *time.Timer
	if m.idleTimeout > 0 {
		idle = time.AfterFunc(m.idleTimeout, func() {
			m.log.Warn("stream idle, closing", "timeout", m.idleTimeout)
			body.Close()
		})
		defer idle.Stop()
	}

	dec := sse.NewDecoder(body)
	for {
		data, err := dec.Next()
		if err != nil {
			return streamError(err)
		}
		if idle != nil {
			idle.Reset(m.idleTimeout)
		}
		m.handle(data)
	}
}

var ErrStreamEnded = errors.New("event stream ended")

func streamError(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrStreamEnded
	}
	return err
}

// handle decodes one frame. Bad frames are dropped without touching the
// connection.
func (m *ConnectionManager) handle(data []byte) {
	msg, err := sse.ParseMessage(data)
	if err != nil {
		m.log.Warn("dropping malformed message", "error", err)
		return
	}

	m.mu.Lock()
	m.lastMessageAt = m.now()
	m.mu.Unlock()

	if msg.Type.IsTransport() {
		return
	}

	n, ok := FromMessage(msg)
	if !ok {
		m.log.Warn("dropping message of unknown type", "type", msg.Type)
		return
	}
	m.store.Add(n)
	if m.onNotification != nil {
		m.onNotification(n)
	}
}

// fail moves to the error state and schedules the next attempt if any are
// left. Stale connections are ignored.
func (m *ConnectionManager) fail(seq uint64, cause error) {
	m.mu.Lock()
	if seq != m.seq {
		m.mu.Unlock()
		return
	}
	m.closeTransportLocked()
	m.setStateLocked(StateError)

	if m.attempts < m.maxAttempts {
		delay := m.backoff.NextBackOff()
		m.attempts++
		attempt := m.attempts
		m.retry = m.afterFunc(delay, func() { m.reconnect(seq) })
		m.mu.Unlock()

		m.log.Warn("stream failed, reconnecting", "error", cause, "attempt", attempt, "delay", delay)
	} else {
		m.mu.Unlock()
		m.log.Error("stream failed, giving up", "error", cause, "attempts", m.maxAttempts)
	}

	m.flushStates()
}

func (m *ConnectionManager) reconnect(seq uint64) {
	m.mu.Lock()
	if seq != m.seq || m.state != StateError {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	m.connectLocked()
	m.mu.Unlock()

	m.flushStates()
}

func (m *ConnectionManager) closeTransportLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.body != nil {
		m.body.Close()
		m.body = nil
	}
}

func (m *ConnectionManager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *ConnectionManager) setStateLocked(state ConnectionState) {
	m.state = state
	if m.onStateChange != nil {
		m.pending = append(m.pending, state)
	}
}

// flushStates delivers queued state changes in order. If another goroutine
// is already delivering, it picks up whatever was queued here.
func (m *ConnectionManager) flushStates() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.pending) > 0 {
		state := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()
		m.onStateChange(state)
		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}
