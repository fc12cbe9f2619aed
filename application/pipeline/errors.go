package pipeline

import (
	"errors"
	"fmt"

	"veridoc.io/application/constants"
)

// RejectionReason names a permanent verification failure. Reasons are part
// of the API surface and must stay stable across releases.
type RejectionReason string

const (
	ReasonMissingMarkers       RejectionReason = "missing_markers"
	ReasonMalformedIdentifier  RejectionReason = "malformed_identifier"
	ReasonDuplicateIdentity    RejectionReason = "duplicate_identity"
	ReasonNoFaceFound          RejectionReason = "no_face_found"
	ReasonBackNoMarkers        RejectionReason = "back_no_markers"
	ReasonBackOCRFailed        RejectionReason = "back_ocr_failed"
	ReasonIDExtractionFailed   RejectionReason = "back_id_extraction_failed"
	ReasonBackIDMismatch       RejectionReason = "back_id_mismatch"
	ReasonLivenessClosedFailed RejectionReason = "liveness_closed_expected"
	ReasonLivenessOpenFailed   RejectionReason = "liveness_open_expected"
	ReasonFaceMismatch         RejectionReason = "face_mismatch"
	ReasonSessionNotFound      RejectionReason = "session_not_found"
	ReasonSessionWrongStage    RejectionReason = "session_wrong_stage"
)

// Rejection is a permanent, structured verification failure. StopCapture
// tells the client whether retaking the shot can possibly succeed.
type Rejection struct {
	Reason      RejectionReason
	Message     string
	StopCapture bool
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("verification rejected: %s", r.Reason)
}

// ResponseCode maps the rejection to the 4 digit client response code.
func (r *Rejection) ResponseCode() *uint {
	codes := map[RejectionReason]uint{
		ReasonMissingMarkers:       constants.FRONT_MISSING_MARKERS,
		ReasonMalformedIdentifier:  constants.FRONT_MALFORMED_IDENTIFIER,
		ReasonDuplicateIdentity:    constants.FRONT_DUPLICATE_IDENTITY,
		ReasonNoFaceFound:          constants.FRONT_NO_FACE_FOUND,
		ReasonBackNoMarkers:        constants.BACK_NO_MARKERS,
		ReasonBackOCRFailed:        constants.BACK_OCR_FAILED,
		ReasonIDExtractionFailed:   constants.BACK_ID_EXTRACTION_FAILED,
		ReasonBackIDMismatch:       constants.BACK_ID_MISMATCH,
		ReasonLivenessClosedFailed: constants.LIVENESS_CLOSED_EXPECTED,
		ReasonLivenessOpenFailed:   constants.LIVENESS_OPEN_EXPECTED,
		ReasonFaceMismatch:         constants.FACE_MISMATCH,
		ReasonSessionNotFound:      constants.SESSION_NOT_FOUND,
		ReasonSessionWrongStage:    constants.SESSION_WRONG_STAGE,
	}
	if code, ok := codes[r.Reason]; ok {
		return &code
	}
	return nil
}

func newRejection(reason RejectionReason, message string, stopCapture bool) *Rejection {
	return &Rejection{Reason: reason, Message: message, StopCapture: stopCapture}
}

// AsRejection unwraps err into a *Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

// TransientError wraps a retryable inference or timeout failure. The
// session is left in its current state so the client can resubmit.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// ErrDuplicateRecord is returned by RecordStore implementations when an
// insert trips one of the hash uniqueness indexes.
var ErrDuplicateRecord = errors.New("document record already exists")

// ErrNoFaceFound is returned by face capabilities when no face region or
// landmark set is present in an image.
var ErrNoFaceFound = errors.New("no face found in image")
