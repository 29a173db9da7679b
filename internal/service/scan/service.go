package scan

import (
	"context"
	"errors"
	"sync"

	"fieldcapture/internal/config"
	"fieldcapture/internal/logger"
	"fieldcapture/internal/scanner"
	"fieldcapture/internal/service/websocket"
)

// ErrDeviceBusy is returned when a second scanning session is opened.
var ErrDeviceBusy = errors.New("a scanning session is already active")

// Service runs scanning sessions for connected capture shells, one at a time.
type Service struct {
	cfg    scanner.Config
	hub    *websocket.HubService
	logger *logger.Logger

	mu            sync.Mutex
	busy          bool
	lastConfirmed string
}

func NewService(config *config.Config, hub *websocket.HubService, logger *logger.Logger) *Service {
	return &Service{
		cfg:    SessionConfig(config.Scanner),
		hub:    hub,
		logger: logger,
	}
}

// SessionConfig maps scanner settings onto a session configuration.
func SessionConfig(sc config.ScannerConfig) scanner.Config {
	return scanner.Config{
		Stabilizer: scanner.StabilizerConfig{
			Rules: scanner.Rules{
				MinLength:      sc.MinLength,
				MaxLength:      sc.MaxLength,
				MinDistinct:    sc.MinDistinct,
				DiversityFloor: sc.DiversityFloor,
				Strict:         sc.Strict,
			},
			ConfirmThreshold: sc.ConfirmThreshold,
			DecayWindow:      sc.DecayWindow,
			MinConfidence:    sc.MinConfidence,
		},
		Decoder: scanner.DecoderConfig{
			Readers:    sc.Readers,
			Frequency:  sc.Frequency,
			Workers:    sc.Workers,
			PatchSize:  sc.PatchSize,
			HalfSample: sc.HalfSample,
		},
		Facing: scanner.Facing(sc.CameraFacing),
	}
}

// LastConfirmed returns the most recently confirmed barcode.
func (s *Service) LastConfirmed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConfirmed
}

// Active reports whether a session currently holds the camera.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Service) lease() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrDeviceBusy
	}
	s.busy = true
	return func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}, nil
}

// Serve runs scanning activations on device until it disconnects or ctx is done.
// After each confirmation or acquisition failure it waits for the shell to ask for a restart.
func (s *Service) Serve(ctx context.Context, device Device) error {
	release, err := s.lease()
	if err != nil {
		device.Failed(scanner.NewAcquisitionError(scanner.ReasonDeviceBusy, err))
		return err
	}
	defer release()

	session := scanner.NewSession(s.cfg, device.Camera(), device.Decoder())
	defer session.Stop()

	s.logger.Info("📷 Scanning session opened")
	defer s.logger.Info("📷 Scanning session closed")

	for {
		drain(device.Events())
		drainRestarts(device.Restarts())

		err := session.Start(ctx)
		// Restarts requested while starting refer to this activation.
		drainRestarts(device.Restarts())
		if err != nil {
			var acqErr *scanner.AcquisitionError
			if !errors.As(err, &acqErr) {
				return ignoreStopped(err)
			}
			s.logger.Warning("Camera acquisition failed: %v", acqErr)
			device.Failed(acqErr)
			if !waitForRestart(ctx, device) {
				return nil
			}
			continue
		}

		code, restarted, err := s.run(ctx, session, device)
		if err != nil {
			return ignoreStopped(err)
		}
		if restarted {
			s.logger.Info("Scanning restarted by device")
			continue
		}

		s.confirm(code, device)
		session.Stop()
		if !waitForRestart(ctx, device) {
			return nil
		}
	}
}

// run feeds device events to the session until confirmation or a restart request.
func (s *Service) run(ctx context.Context, session *scanner.Session, device Device) (string, bool, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var restarted bool
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-device.Restarts():
			restarted = true
			cancel()
		case <-runCtx.Done():
		}
	}()

	code, err := session.Run(runCtx, device.Events())
	cancel()
	<-watcher

	if err == nil {
		// A restart racing a confirmation is handled after the confirmation.
		if restarted {
			s.confirm(code, device)
		}
		return code, restarted, nil
	}
	if restarted && ctx.Err() == nil {
		return "", true, nil
	}
	return "", false, err
}

func (s *Service) confirm(code string, device Device) {
	s.mu.Lock()
	s.lastConfirmed = code
	s.mu.Unlock()

	s.logger.Info("✅ Barcode confirmed: %s", code)
	if err := device.Confirmed(code); err != nil {
		s.logger.Warning("Could not notify device of confirmation: %v", err)
	}
	if s.hub != nil {
		s.hub.Broadcast(websocket.Event{Type: websocket.EventBarcodeConfirmed, Barcode: code})
	}
}

func waitForRestart(ctx context.Context, device Device) bool {
	select {
	case <-ctx.Done():
		return false
	case <-device.Done():
		return false
	case <-device.Restarts():
		return true
	}
}

func drain(events <-chan scanner.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func ignoreStopped(err error) error {
	if errors.Is(err, scanner.ErrSessionStopped) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func drainRestarts(restarts <-chan struct{}) {
	for {
		select {
		case _, ok := <-restarts:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
