package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeCamera struct {
	mu       sync.Mutex
	err      error
	gate     chan struct{}
	acquired []Stream
	released []Stream
}

func (c *fakeCamera) RequestPermission(ctx context.Context, facing Facing) (Stream, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return Stream{}, c.err
	}
	stream := Stream{ID: "stream-" + string(rune('a'+len(c.acquired))), Facing: facing}
	c.acquired = append(c.acquired, stream)
	return stream, nil
}

func (c *fakeCamera) Stop(stream Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, stream)
	return nil
}

func (c *fakeCamera) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acquired), len(c.released)
}

type fakeDecoder struct {
	err     error
	started int
	stopped int
	cfg     DecoderConfig
}

func (d *fakeDecoder) Start(ctx context.Context, stream Stream, cfg DecoderConfig) error {
	if d.err != nil {
		return d.err
	}
	d.started++
	d.cfg = cfg
	return nil
}

func (d *fakeDecoder) Stop() error {
	d.stopped++
	return nil
}

func newTestSession(camera *fakeCamera, decoder *fakeDecoder) *Session {
	cfg := Config{
		Stabilizer: DefaultStabilizerConfig(),
		Decoder:    DecoderConfig{Readers: []string{"ean_reader"}, Frequency: 10, Workers: 2, PatchSize: "medium"},
	}
	return NewSession(cfg, camera, decoder)
}

func TestSession_StartAndConfirm(t *testing.T) {
	camera := &fakeCamera{}
	decoder := &fakeDecoder{}
	s := newTestSession(camera, decoder)

	if s.State() != StateIdle {
		t.Fatalf("Expected idle, got %s", s.State())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.State() != StateActive {
		t.Fatalf("Expected active, got %s", s.State())
	}
	if camera.acquired[0].Facing != FacingEnvironment {
		t.Errorf("Expected default facing environment, got %s", camera.acquired[0].Facing)
	}
	if decoder.cfg.PatchSize != "medium" {
		t.Errorf("Expected decoder config to be passed through, got %+v", decoder.cfg)
	}

	var confirmed []string
	for i := 0; i < 5; i++ {
		if code, ok := s.Ingest(Event{Code: "ABC123"}); ok {
			confirmed = append(confirmed, code)
		}
	}

	if len(confirmed) != 1 || confirmed[0] != "ABC123" {
		t.Errorf("Expected single confirmation of ABC123, got %v", confirmed)
	}
	if s.State() != StateConfirmed {
		t.Errorf("Expected confirmed state, got %s", s.State())
	}
	if decoder.stopped != 1 {
		t.Errorf("Expected decoder to stop on confirmation, stopped %d times", decoder.stopped)
	}
}

func TestSession_IngestIgnoredWhenNotActive(t *testing.T) {
	s := newTestSession(&fakeCamera{}, &fakeDecoder{})

	for i := 0; i < 3; i++ {
		if _, ok := s.Ingest(Event{Code: "ABC123"}); ok {
			t.Fatal("Expected idle session to drop events")
		}
	}
	if code, count := s.Tracked(); code != "" || count != 0 {
		t.Errorf("Expected nothing tracked, got %s x%d", code, count)
	}
}

func TestSession_AcquisitionFailure(t *testing.T) {
	camera := &fakeCamera{err: NewAcquisitionError(ReasonPermissionDenied, errors.New("denied"))}
	s := newTestSession(camera, &fakeDecoder{})

	err := s.Start(context.Background())

	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("Expected AcquisitionError, got %v", err)
	}
	if acqErr.Reason != ReasonPermissionDenied {
		t.Errorf("Expected permission-denied, got %s", acqErr.Reason)
	}
	if s.State() != StateStopped {
		t.Errorf("Expected stopped after failure, got %s", s.State())
	}

	// Failure is recoverable: a later Start succeeds.
	camera.err = nil
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if s.State() != StateActive {
		t.Errorf("Expected active after restart, got %s", s.State())
	}
}

func TestSession_DecoderFailureReleasesStream(t *testing.T) {
	camera := &fakeCamera{}
	decoder := &fakeDecoder{err: errors.New("decoder init failed")}
	s := newTestSession(camera, decoder)

	err := s.Start(context.Background())

	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) || acqErr.Reason != ReasonUnknown {
		t.Fatalf("Expected unknown AcquisitionError, got %v", err)
	}
	acquired, released := camera.counts()
	if acquired != 1 || released != 1 {
		t.Errorf("Expected stream to be released, acquired %d released %d", acquired, released)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	camera := &fakeCamera{}
	decoder := &fakeDecoder{}
	s := newTestSession(camera, decoder)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Ingest(Event{Code: "ABC123"})

	s.Stop()
	s.Stop()

	if s.State() != StateStopped {
		t.Errorf("Expected stopped, got %s", s.State())
	}
	if _, released := camera.counts(); released != 1 {
		t.Errorf("Expected stream released once, got %d", released)
	}
	if decoder.stopped != 1 {
		t.Errorf("Expected decoder stopped once, got %d", decoder.stopped)
	}
	if code, count := s.Tracked(); code != "" || count != 0 {
		t.Errorf("Expected stabilizer reset, got %s x%d", code, count)
	}
}

func TestSession_StopDuringAcquisition(t *testing.T) {
	camera := &fakeCamera{gate: make(chan struct{})}
	decoder := &fakeDecoder{}
	s := newTestSession(camera, decoder)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateStarting {
		if time.Now().After(deadline) {
			t.Fatal("Session never entered starting state")
		}
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	close(camera.gate)

	if err := <-errCh; !errors.Is(err, ErrSessionStopped) {
		t.Errorf("Expected ErrSessionStopped, got %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("Expected stopped, got %s", s.State())
	}
	acquired, released := camera.counts()
	if acquired != 1 || released != 1 {
		t.Errorf("Expected late stream to be released, acquired %d released %d", acquired, released)
	}
	if decoder.started != 0 {
		t.Errorf("Expected decoder not to start, started %d", decoder.started)
	}
}

func TestSession_RestartReleasesPreviousStream(t *testing.T) {
	camera := &fakeCamera{}
	s := newTestSession(camera, &fakeDecoder{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		s.Ingest(Event{Code: "ABC123"})
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}

	acquired, released := camera.counts()
	if acquired != 2 || released != 1 {
		t.Errorf("Expected one live stream after restart, acquired %d released %d", acquired, released)
	}
	if _, ok := s.Confirmed(); ok {
		t.Error("Expected restart to clear the previous confirmation")
	}
}

func TestSession_Run(t *testing.T) {
	s := newTestSession(&fakeCamera{}, &fakeDecoder{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	events := make(chan Event, 6)
	events <- Event{Code: "XYZ789"}
	events <- Event{Code: "ABC123"}
	events <- Event{Code: "ABC123"}
	events <- Event{Code: "ABC123"}
	events <- Event{Code: "XYZ789"}
	close(events)

	code, err := s.Run(context.Background(), events)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if code != "ABC123" {
		t.Errorf("Expected ABC123, got %s", code)
	}
}

func TestSession_RunEndsWhenChannelCloses(t *testing.T) {
	s := newTestSession(&fakeCamera{}, &fakeDecoder{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	events := make(chan Event)
	close(events)

	if _, err := s.Run(context.Background(), events); !errors.Is(err, ErrSessionStopped) {
		t.Errorf("Expected ErrSessionStopped, got %v", err)
	}
}

func TestSession_RunHonoursContext(t *testing.T) {
	s := newTestSession(&fakeCamera{}, &fakeDecoder{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Run(ctx, make(chan Event)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
