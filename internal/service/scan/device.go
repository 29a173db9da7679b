package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldcapture/internal/logger"
	"fieldcapture/internal/scanner"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message types exchanged with the capture shell.
const (
	// client -> server
	MsgReady   = "ready"
	MsgError   = "error"
	MsgDecode  = "decode"
	MsgRestart = "restart"

	// server -> client
	MsgAcquire   = "acquire"
	MsgRelease   = "release"
	MsgStart     = "start"
	MsgStop      = "stop"
	MsgConfirmed = "confirmed"
	MsgFailed    = "failed"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

// AckTimeout bounds how long the shell may take to answer acquire and start.
var AckTimeout = 30 * time.Second

// ErrDisconnected is returned when the shell goes away mid-request.
var ErrDisconnected = errors.New("capture device disconnected")

// Message is the JSON frame on the scan socket.
type Message struct {
	Type       string                 `json:"type"`
	StreamID   string                 `json:"streamId,omitempty"`
	Facing     scanner.Facing         `json:"facing,omitempty"`
	Config     *scanner.DecoderConfig `json:"config,omitempty"`
	Barcode    string                 `json:"barcode,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Confidence *float64               `json:"confidence,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Message    string                 `json:"message,omitempty"`
}

// Device is a capture shell that owns a camera and a decoder.
type Device interface {
	Camera() scanner.Camera
	Decoder() scanner.Decoder
	Events() <-chan scanner.Event
	Restarts() <-chan struct{}
	Done() <-chan struct{}
	Confirmed(code string) error
	Failed(err *scanner.AcquisitionError) error
}

// RemoteDevice drives a shell's camera and decoder over a WebSocket connection.
type RemoteDevice struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	acks     chan Message
	events   chan scanner.Event
	restarts chan struct{}
	done     chan struct{}
	logger   *logger.Logger
}

func NewRemoteDevice(conn *websocket.Conn, logger *logger.Logger) *RemoteDevice {
	return &RemoteDevice{
		conn:     conn,
		acks:     make(chan Message, 1),
		events:   make(chan scanner.Event, eventBuffer),
		restarts: make(chan struct{}, 1),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Listen reads frames until the connection fails. Run it in its own goroutine.
func (d *RemoteDevice) Listen() {
	defer close(d.done)
	defer close(d.events)

	for {
		var msg Message
		if err := d.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.logger.Warning("Scan socket read error: %v", err)
			}
			return
		}

		switch msg.Type {
		case MsgReady, MsgError:
			select {
			case d.acks <- msg:
			default:
				d.logger.Warning("Dropping unexpected %s message", msg.Type)
			}
		case MsgDecode:
			select {
			case d.events <- scanner.Event{Code: msg.Code, Confidence: msg.Confidence}:
			default:
				d.logger.Warning("Decode queue full, dropping candidate")
			}
		case MsgRestart:
			select {
			case d.restarts <- struct{}{}:
			default:
			}
		default:
			d.logger.Warning("Unknown scan message type %q", msg.Type)
		}
	}
}

func (d *RemoteDevice) Events() <-chan scanner.Event { return d.events }
func (d *RemoteDevice) Restarts() <-chan struct{}    { return d.restarts }
func (d *RemoteDevice) Done() <-chan struct{}        { return d.done }

func (d *RemoteDevice) send(msg Message) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := d.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

// request sends msg and waits for the shell's ready or error answer.
func (d *RemoteDevice) request(ctx context.Context, msg Message) error {
	// Stale answers from an abandoned request must not satisfy this one.
	select {
	case <-d.acks:
	default:
	}

	if err := d.send(msg); err != nil {
		return scanner.NewAcquisitionError(scanner.ReasonUnknown, err)
	}

	timer := time.NewTimer(AckTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return scanner.NewAcquisitionError(scanner.ReasonNoDevice, ErrDisconnected)
	case <-timer.C:
		return scanner.NewAcquisitionError(scanner.ReasonUnknown, fmt.Errorf("no answer to %s", msg.Type))
	case ack := <-d.acks:
		if ack.Type == MsgError {
			return scanner.NewAcquisitionError(scanner.AcquisitionReason(ack.Reason), errors.New(ack.Message))
		}
		return nil
	}
}

func (d *RemoteDevice) Camera() scanner.Camera   { return remoteCamera{d} }
func (d *RemoteDevice) Decoder() scanner.Decoder { return remoteDecoder{d} }

type remoteCamera struct {
	d *RemoteDevice
}

// RequestPermission asks the shell to open its camera.
func (c remoteCamera) RequestPermission(ctx context.Context, facing scanner.Facing) (scanner.Stream, error) {
	stream := scanner.Stream{ID: uuid.NewString(), Facing: facing}
	if err := c.d.request(ctx, Message{Type: MsgAcquire, StreamID: stream.ID, Facing: facing}); err != nil {
		return scanner.Stream{}, err
	}
	return stream, nil
}

// Stop asks the shell to release a camera stream.
func (c remoteCamera) Stop(stream scanner.Stream) error {
	return c.d.send(Message{Type: MsgRelease, StreamID: stream.ID})
}

type remoteDecoder struct {
	d *RemoteDevice
}

// Start asks the shell to start decoding with cfg.
func (dec remoteDecoder) Start(ctx context.Context, stream scanner.Stream, cfg scanner.DecoderConfig) error {
	return dec.d.request(ctx, Message{Type: MsgStart, StreamID: stream.ID, Config: &cfg})
}

func (dec remoteDecoder) Stop() error {
	return dec.d.send(Message{Type: MsgStop})
}

func (d *RemoteDevice) Confirmed(code string) error {
	return d.send(Message{Type: MsgConfirmed, Barcode: code})
}

func (d *RemoteDevice) Failed(err *scanner.AcquisitionError) error {
	return d.send(Message{Type: MsgFailed, Reason: string(err.Reason), Message: err.Message()})
}
