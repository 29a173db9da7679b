package scanner

import (
	"context"
	"sync"
	"time"
)

// Facing selects the camera.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// Stream identifies an acquired video stream.
type Stream struct {
	ID     string `json:"id"`
	Facing Facing `json:"facing"`
}

// Camera acquires and releases video streams.
type Camera interface {
	RequestPermission(ctx context.Context, facing Facing) (Stream, error)
	Stop(stream Stream) error
}

// DecoderConfig is passed through to the decoder untouched.
type DecoderConfig struct {
	Readers    []string `json:"readers"`
	Frequency  int      `json:"frequency"`
	Workers    int      `json:"numOfWorkers"`
	PatchSize  string   `json:"patchSize"`
	HalfSample bool     `json:"halfSample"`
}

// Decoder produces decode events from a video stream.
type Decoder interface {
	Start(ctx context.Context, stream Stream, cfg DecoderConfig) error
	Stop() error
}

// Config bundles everything one session needs.
type Config struct {
	Stabilizer StabilizerConfig
	Decoder    DecoderConfig
	Facing     Facing
}

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateConfirmed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateConfirmed:
		return "confirmed"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Session runs one scanning activation over a camera and a decoder.
// Collaborators are called with the session lock held and must not call back into the session.
type Session struct {
	mu         sync.Mutex
	cfg        Config
	camera     Camera
	decoder    Decoder
	stabilizer *Stabilizer
	now        func() time.Time

	state    State
	stream   *Stream
	decoding bool
	gen      uint64
}

type Option func(*Session)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates an idle session.
func NewSession(cfg Config, camera Camera, decoder Decoder, opts ...Option) *Session {
	if cfg.Facing == "" {
		cfg.Facing = FacingEnvironment
	}
	s := &Session{
		cfg:        cfg,
		camera:     camera,
		decoder:    decoder,
		stabilizer: NewStabilizer(cfg.Stabilizer),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start acquires the camera and starts the decoder. Any previous activation is
// released first. On failure the session is Stopped and an *AcquisitionError is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.releaseLocked()
	s.gen++
	gen := s.gen
	s.state = StateStarting
	s.mu.Unlock()

	stream, err := s.camera.RequestPermission(ctx, s.cfg.Facing)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state != StateStarting {
		if err == nil {
			s.camera.Stop(stream)
		}
		return ErrSessionStopped
	}
	if err != nil {
		s.state = StateStopped
		return asAcquisitionError(err)
	}
	s.stream = &stream

	if err := s.decoder.Start(ctx, stream, s.cfg.Decoder); err != nil {
		s.releaseLocked()
		s.state = StateStopped
		return asAcquisitionError(err)
	}
	s.decoding = true
	s.state = StateActive
	return nil
}

// Ingest is the single entry point for decode events. It returns the confirmed
// code exactly once; events outside the Active state are dropped.
func (s *Session) Ingest(ev Event) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return "", false
	}
	if s.stabilizer.Observe(ev, s.now()) != OutcomeConfirmed {
		return "", false
	}

	s.state = StateConfirmed
	s.stopDecoderLocked()
	code, _ := s.stabilizer.Confirmed()
	return code, true
}

// Run feeds events to Ingest in arrival order until a code is confirmed,
// the channel closes, the session is stopped or ctx is done.
func (s *Session) Run(ctx context.Context, events <-chan Event) (string, error) {
	for {
		switch s.State() {
		case StateActive:
		case StateConfirmed:
			code, _ := s.Confirmed()
			return code, nil
		default:
			return "", ErrSessionStopped
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return "", ErrSessionStopped
			}
			if code, confirmed := s.Ingest(ev); confirmed {
				return code, nil
			}
		}
	}
}

// Confirmed returns the confirmed code of the current activation.
func (s *Session) Confirmed() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stabilizer.Confirmed()
}

// Tracked exposes the stabilizer's current candidate and count.
func (s *Session) Tracked() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stabilizer.Tracked()
}

// Stop releases the decoder and stream and clears all state. Safe to call repeatedly.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	s.gen++
	s.state = StateStopped
}

func (s *Session) releaseLocked() {
	s.stopDecoderLocked()
	if s.stream != nil {
		s.camera.Stop(*s.stream)
		s.stream = nil
	}
	s.stabilizer.Reset()
}

func (s *Session) stopDecoderLocked() {
	if s.decoding {
		s.decoder.Stop()
		s.decoding = false
	}
}
