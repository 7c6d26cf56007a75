// Package realtime maintains the push channel to the booking server and
// delivers typed domain events to subscribers. Connection state is an
// explicit finite-state machine with bounded, backed-off reconnection and an
// application-level ping/pong heartbeat. Events lost during a disconnect
// window are not replayed; callers reconcile through the OnConnect hook.
package realtime

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studioboard/internal/domain"
	"studioboard/internal/pkg/clock"
)

const writeWait = 10 * time.Second

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Handler receives one push event. Handlers run on the read loop, in the
// order the transport delivered the events.
type Handler func(domain.Event)

type Config struct {
	// URL of the websocket endpoint, ws:// or wss://.
	URL string
	// Token supplies the bearer credential, sent as a query parameter the
	// way the server's websocket route expects it.
	Token func() (string, error)

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// MaxReconnectAttempts bounds consecutive failed attempts; once
	// exhausted the manager stays disconnected until Connect is called
	// again.
	MaxReconnectAttempts int
	BackoffBase          time.Duration
	BackoffMax           time.Duration

	Dialer *websocket.Dialer
	Clock  clock.Clock
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Clock == nil {
		c.Clock = clock.System
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type subscription struct {
	id int64
	fn Handler
}

type Manager struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	state   State
	running bool
	conn    *websocket.Conn
	stop    chan struct{}
	done    chan struct{}

	subs    map[domain.EventType][]subscription
	nextSub int64
	onConn  []func()

	writeMu sync.Mutex
}

func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:   cfg,
		log:   cfg.Logger,
		state: StateDisconnected,
		subs:  make(map[domain.EventType][]subscription),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe handle.
func (m *Manager) Subscribe(t domain.EventType, fn Handler) (unsubscribe func()) {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[t] = append(m.subs[t], subscription{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.subs[t]
		for i, s := range list {
			if s.id == id {
				m.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// OnConnect registers a hook invoked after every successful (re)connect.
// Callers use it to re-fetch authoritative state, since events may have been
// lost while disconnected.
func (m *Manager) OnConnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConn = append(m.onConn, fn)
}

// Connect starts the connection loop. It fails if the manager is already
// running; after the attempt budget is exhausted or after Disconnect it can
// be called again.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyConnected
	}
	m.running = true
	m.state = StateConnecting
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop = stop
	m.done = done
	go m.run(stop, done)
	return nil
}

// Disconnect closes the channel and suppresses further automatic
// reconnection. It blocks until the connection loop has exited.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.running || m.stop == nil {
		m.mu.Unlock()
		return
	}
	stop := m.stop
	m.stop = nil
	conn := m.conn
	done := m.done
	m.mu.Unlock()

	close(stop)
	if conn != nil {
		conn.Close()
	}
	<-done
}

func (m *Manager) run(stop, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.state = StateDisconnected
		m.running = false
		m.conn = nil
		m.mu.Unlock()
		close(done)
	}()

	attempt := 0
	for {
		m.setState(StateConnecting)
		conn, err := m.dial()
		if err != nil {
			m.log.Warn("push channel dial failed",
				zap.String("url", m.cfg.URL), zap.Int("attempt", attempt), zap.Error(err))
			if !m.waitBackoff(&attempt, stop) {
				return
			}
			continue
		}

		attempt = 0
		m.mu.Lock()
		m.conn = conn
		m.state = StateConnected
		m.mu.Unlock()
		m.log.Info("push channel connected", zap.String("url", m.cfg.URL))
		go m.fireConnected()

		err = m.serve(conn, stop)
		conn.Close()
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()

		select {
		case <-stop:
			return
		default:
		}
		m.log.Warn("push channel lost", zap.Error(err))
		if !m.waitBackoff(&attempt, stop) {
			return
		}
	}
}

// waitBackoff counts one reconnection attempt and sleeps out its delay.
// Returns false once the attempt budget is spent or a manual disconnect is
// in progress.
func (m *Manager) waitBackoff(attempt *int, stop chan struct{}) bool {
	*attempt++
	if *attempt > m.cfg.MaxReconnectAttempts {
		m.log.Error("reconnect attempts exhausted",
			zap.Int("max_attempts", m.cfg.MaxReconnectAttempts))
		return false
	}
	reconnectAttempts.Inc()
	m.setState(StateReconnecting)
	select {
	case <-m.cfg.Clock.After(m.backoff(*attempt)):
		return true
	case <-stop:
		return false
	}
}

// backoff grows linearly with the attempt count, capped at BackoffMax.
func (m *Manager) backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * m.cfg.BackoffBase
	if d > m.cfg.BackoffMax {
		d = m.cfg.BackoffMax
	}
	return d
}

func (m *Manager) dial() (*websocket.Conn, error) {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return nil, err
	}
	if m.cfg.Token != nil {
		tok, err := m.cfg.Token()
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("token", tok)
		u.RawQuery = q.Encode()
	}
	conn, _, err := m.cfg.Dialer.Dial(u.String(), nil)
	return conn, err
}

type heartbeat struct {
	Type string `json:"type"`
}

// serve runs the heartbeat loop against one live connection while the read
// loop dispatches events. It returns when the connection dies, a pong is
// missed, or a manual disconnect closes stop.
func (m *Manager) serve(conn *websocket.Conn, stop chan struct{}) error {
	readErr := make(chan error, 1)
	pong := make(chan struct{}, 1)
	go m.readLoop(conn, readErr, pong)

	for {
		select {
		case <-stop:
			return nil
		case err := <-readErr:
			return err
		case <-m.cfg.Clock.After(m.cfg.HeartbeatInterval):
			// Drop any pong left over from a previous exchange.
			select {
			case <-pong:
			default:
			}
			if err := m.writeJSON(conn, heartbeat{Type: "ping"}); err != nil {
				return err
			}
			select {
			case <-stop:
				return nil
			case err := <-readErr:
				return err
			case <-pong:
			case <-m.cfg.Clock.After(m.cfg.HeartbeatTimeout):
				heartbeatTimeouts.Inc()
				return ErrHeartbeatTimeout
			}
		}
	}
}

func (m *Manager) readLoop(conn *websocket.Conn, readErr chan<- error, pong chan<- struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}

		var probe struct {
			Type      string           `json:"type"`
			EventType domain.EventType `json:"event_type"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			m.log.Warn("malformed push payload", zap.Error(err))
			continue
		}
		if probe.Type == "pong" {
			select {
			case pong <- struct{}{}:
			default:
			}
			continue
		}
		if probe.EventType == "" {
			continue
		}

		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			m.log.Warn("malformed event payload",
				zap.String("event_type", string(probe.EventType)), zap.Error(err))
			continue
		}
		m.dispatch(ev)
	}
}

// dispatch delivers one event to its subscribers synchronously, preserving
// the transport's delivery order across events.
func (m *Manager) dispatch(ev domain.Event) {
	m.mu.Lock()
	list := m.subs[ev.Type]
	handlers := make([]Handler, len(list))
	for i, s := range list {
		handlers[i] = s.fn
	}
	m.mu.Unlock()

	eventsDispatched.WithLabelValues(string(ev.Type)).Inc()
	for _, h := range handlers {
		h(ev)
	}
}

func (m *Manager) fireConnected() {
	m.mu.Lock()
	hooks := make([]func(), len(m.onConn))
	copy(hooks, m.onConn)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (m *Manager) writeJSON(conn *websocket.Conn, v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
