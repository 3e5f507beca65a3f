// Package session owns the one live connection to the paired keyboard.
//
// A Session holds the current device handle and connection state, drives
// auto-connect and the readiness probe, reacts to hotplug events and guards
// the operations that make the keyboard drop off the bus (polling-rate
// changes and factory reset). Every state transition is pushed to the
// registered observers in the order it happened.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/retry"
	"github.com/muurk/keytune/internal/transport"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Initializing
	Initialized
	InitializationError
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	case InitializationError:
		return "initialization_error"
	default:
		return "unknown"
	}
}

// Status is what observers receive on every transition.
type Status struct {
	State        State                 `json:"-"`
	StateName    string                `json:"state"`
	Message      string                `json:"message"`
	Connected    bool                  `json:"connected"`
	Initializing bool                  `json:"initializing"`
	Initialized  bool                  `json:"initialized"`
	Error        bool                  `json:"error"`
	Device       *transport.DeviceInfo `json:"device,omitempty"`
	At           time.Time             `json:"at"`
}

func newStatus(state State, message string, device *transport.DeviceInfo) Status {
	st := Status{
		State:        state,
		StateName:    state.String(),
		Message:      message,
		Connected:    state >= Connected,
		Initializing: state == Initializing,
		Initialized:  state == Initialized,
		Error:        state == InitializationError,
		At:           time.Now(),
	}
	if device != nil {
		d := *device
		st.Device = &d
	}
	return st
}

// Observer receives status pushes. OnStatus runs on the session's dispatch
// goroutine and must not block for long.
type Observer interface {
	OnStatus(Status)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Status)

func (f ObserverFunc) OnStatus(s Status) { f(s) }

// PairingStore persists the one paired StableID.
type PairingStore interface {
	// Load returns the paired StableID or "" when nothing is paired.
	Load() (transport.StableID, error)
	// Save pairs info and drops data kept for any other keyboard.
	Save(info transport.DeviceInfo) error
	// Clear forgets the pairing.
	Clear() error
}

// Options tunes connection handling. Zero fields take the defaults.
type Options struct {
	AutoConnect   retry.Policy
	Reads         retry.Policy
	ProbeAttempts int
	ProbeStep     time.Duration
	InitRetries   int
	RiskyTimeout  time.Duration
	RiskyGrace    time.Duration
}

// DefaultOptions returns the built-in connection settings.
func DefaultOptions() Options {
	return Options{
		AutoConnect:   retry.DefaultDiscoveryPolicy(),
		Reads:         retry.DefaultReadPolicy(),
		ProbeAttempts: 5,
		ProbeStep:     200 * time.Millisecond,
		InitRetries:   1,
		RiskyTimeout:  5 * time.Second,
		RiskyGrace:    3 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.AutoConnect.MaxAttempts <= 0 {
		o.AutoConnect = def.AutoConnect
	}
	if o.Reads.MaxAttempts <= 0 {
		o.Reads = def.Reads
	}
	if o.ProbeAttempts <= 0 {
		o.ProbeAttempts = def.ProbeAttempts
	}
	if o.ProbeStep <= 0 {
		o.ProbeStep = def.ProbeStep
	}
	if o.InitRetries < 0 {
		o.InitRetries = 0
	}
	if o.RiskyTimeout <= 0 {
		o.RiskyTimeout = def.RiskyTimeout
	}
	if o.RiskyGrace <= 0 {
		o.RiskyGrace = def.RiskyGrace
	}
	return o
}

type connectCall struct {
	done   chan struct{}
	device *transport.DeviceInfo
	err    error
}

// Session is the single owner of the keyboard connection.
type Session struct {
	t     transport.Transport
	store PairingStore
	opts  Options

	mu         sync.Mutex
	state      State
	message    string
	handle     transport.Handle
	device     *transport.DeviceInfo
	base       *transport.BaseInfo
	connecting *connectCall
	guard      guard
	pending    []Status

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int

	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a disconnected session. Call Start to follow hotplug events.
func New(t transport.Transport, store PairingStore, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		t:         t,
		store:     store,
		opts:      opts.withDefaults(),
		state:     Disconnected,
		message:   "No keyboard connected",
		observers: make(map[int]Observer),
		notify:    make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.wg.Add(1)
	go s.dispatch()
	return s
}

// Start begins consuming transport events.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.run()
}

// Close stops event handling, cancels any risky-op guard and closes the
// handle. The transport itself is left to its owner.
func (s *Session) Close() error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	if op := s.guard.current; op != nil {
		s.endGuardLocked(op, context.Canceled)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	if h != nil {
		return h.Close()
	}
	return nil
}

// Subscribe registers an observer. The returned func unregisters it.
func (s *Session) Subscribe(o Observer) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = o
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newStatus(s.state, s.message, s.device)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the connected keyboard, or nil.
func (s *Session) Device() *transport.DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}
	d := *s.device
	return &d
}

// setStateLocked records a transition and queues it for observers.
func (s *Session) setStateLocked(state State, message string) {
	from := s.state
	s.state = state
	s.message = message
	logging.LogTransition(from.String(), state.String(), message)
	s.pending = append(s.pending, newStatus(state, message, s.device))
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// setStateFor transitions only while h is still the live handle.
func (s *Session) setStateFor(h transport.Handle, state State, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != h {
		return false
	}
	s.setStateLocked(state, message)
	return true
}

// dispatch delivers queued statuses in order on a single goroutine, so an
// observer may call back into the session without deadlocking.
func (s *Session) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.notify:
		}
		for {
			s.mu.Lock()
			batch := s.pending
			s.pending = nil
			s.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, st := range batch {
				s.deliver(st)
			}
		}
	}
}

func (s *Session) deliver(st Status) {
	s.obsMu.RLock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	obs := make([]Observer, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		obs = append(obs, s.observers[id])
	}
	s.obsMu.RUnlock()

	for _, o := range obs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("Observer panicked", zap.Any("panic", r))
				}
			}()
			o.OnStatus(st)
		}()
	}
}
