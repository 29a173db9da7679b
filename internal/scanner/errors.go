package scanner

import (
	"errors"
	"fmt"
)

// AcquisitionReason names why the camera or decoder could not be started.
type AcquisitionReason string

const (
	ReasonPermissionDenied AcquisitionReason = "permission-denied"
	ReasonNoDevice         AcquisitionReason = "no-device"
	ReasonUnsupported      AcquisitionReason = "unsupported"
	ReasonDeviceBusy       AcquisitionReason = "device-busy"
	ReasonUnknown          AcquisitionReason = "unknown"
)

var reasonMessages = map[AcquisitionReason]string{
	ReasonPermissionDenied: "camera permission was denied",
	ReasonNoDevice:         "no camera was found on this device",
	ReasonUnsupported:      "camera access is not supported here",
	ReasonDeviceBusy:       "the camera is in use by another session",
	ReasonUnknown:          "the camera could not be started",
}

// ErrSessionStopped is returned when a session is stopped while starting or running.
var ErrSessionStopped = errors.New("scanning session stopped")

// AcquisitionError reports a recoverable camera/decoder start failure.
type AcquisitionError struct {
	Reason AcquisitionReason
	Err    error
}

// NewAcquisitionError builds an AcquisitionError, mapping unknown reasons to ReasonUnknown.
func NewAcquisitionError(reason AcquisitionReason, err error) *AcquisitionError {
	if _, ok := reasonMessages[reason]; !ok {
		reason = ReasonUnknown
	}
	return &AcquisitionError{Reason: reason, Err: err}
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message(), e.Err)
	}
	return e.Message()
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Message is the human-readable reason shown to the user.
func (e *AcquisitionError) Message() string {
	if msg, ok := reasonMessages[e.Reason]; ok {
		return msg
	}
	return reasonMessages[ReasonUnknown]
}

func asAcquisitionError(err error) *AcquisitionError {
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		return acqErr
	}
	return NewAcquisitionError(ReasonUnknown, err)
}
