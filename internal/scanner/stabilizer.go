package scanner

import "time"

const (
	// DefaultConfirmThreshold is the number of consecutive identical reads needed to confirm.
	DefaultConfirmThreshold = 3
	// DefaultDecayWindow bounds how long a partial match survives without a matching read.
	DefaultDecayWindow = 2 * time.Second
	// DefaultMinConfidence is the decoder confidence floor (0..1).
	DefaultMinConfidence = 0.8
)

// Event is one raw decode candidate. Confidence is optional.
type Event struct {
	Code       string   `json:"code"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Outcome is the result of feeding one event to the stabilizer.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeTracking
	OutcomeConfirmed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTracking:
		return "tracking"
	case OutcomeConfirmed:
		return "confirmed"
	default:
		return "ignored"
	}
}

// StabilizerConfig tunes the debounce.
type StabilizerConfig struct {
	Rules            Rules
	ConfirmThreshold int
	DecayWindow      time.Duration
	MinConfidence    float64
}

// DefaultStabilizerConfig returns the baseline tuning.
func DefaultStabilizerConfig() StabilizerConfig {
	return StabilizerConfig{
		Rules:            DefaultRules(),
		ConfirmThreshold: DefaultConfirmThreshold,
		DecayWindow:      DefaultDecayWindow,
		MinConfidence:    DefaultMinConfidence,
	}
}

// Stabilizer turns a noisy candidate stream into at most one confirmed code.
// It holds no timers: decay is a deadline checked against the time passed to Observe.
type Stabilizer struct {
	cfg       StabilizerConfig
	candidate string
	count     int
	deadline  time.Time
	confirmed bool
	result    string
}

// NewStabilizer creates a stabilizer; a threshold below 1 falls back to the default.
func NewStabilizer(cfg StabilizerConfig) *Stabilizer {
	if cfg.ConfirmThreshold < 1 {
		cfg.ConfirmThreshold = DefaultConfirmThreshold
	}
	return &Stabilizer{cfg: cfg}
}

// Observe applies one event received at now.
func (s *Stabilizer) Observe(ev Event, now time.Time) Outcome {
	if s.confirmed {
		return OutcomeIgnored
	}
	if !s.cfg.Rules.Validate(ev.Code) {
		return OutcomeIgnored
	}
	if ev.Confidence != nil && *ev.Confidence < s.cfg.MinConfidence {
		return OutcomeIgnored
	}

	s.Expire(now)

	if ev.Code == s.candidate {
		s.count++
	} else {
		s.candidate = ev.Code
		s.count = 1
	}
	if s.cfg.DecayWindow > 0 {
		s.deadline = now.Add(s.cfg.DecayWindow)
	}

	if s.count >= s.cfg.ConfirmThreshold {
		s.confirmed = true
		s.result = s.candidate
		return OutcomeConfirmed
	}
	return OutcomeTracking
}

// Expire clears the tracked candidate when its decay deadline has passed.
func (s *Stabilizer) Expire(now time.Time) bool {
	if s.candidate == "" || s.deadline.IsZero() || !now.After(s.deadline) {
		return false
	}
	s.candidate = ""
	s.count = 0
	s.deadline = time.Time{}
	return true
}

// Tracked returns the current candidate and its consecutive-match count.
func (s *Stabilizer) Tracked() (string, int) {
	return s.candidate, s.count
}

// Confirmed returns the confirmed code, if any.
func (s *Stabilizer) Confirmed() (string, bool) {
	return s.result, s.confirmed
}

// Reset clears all state including the confirmed latch.
func (s *Stabilizer) Reset() {
	cfg := s.cfg
	*s = Stabilizer{cfg: cfg}
}
