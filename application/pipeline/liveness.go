package pipeline

import (
	"context"
	"image"
	"math"
)

// MouthState is the classified state of a mouth in one frame.
type MouthState string

const (
	MouthClosed MouthState = "closed"
	MouthOpen   MouthState = "open"
)

// marOpenThreshold is the classification boundary. The boundary itself
// belongs to closed: ratio <= 0.5 is closed, anything above is open.
const marOpenThreshold = 0.5

// LivenessValidator runs the two-shot mouth challenge: the first frame
// must show a closed mouth, the second an open one.
type LivenessValidator struct {
	Landmarker FaceLandmarker
}

// MouthAspectRatio computes (mean of the two vertical inter-lip
// distances) / (mouth corner distance).
func MouthAspectRatio(mouth MouthPoints) float64 {
	vertical := (distance(mouth.UpperOuter, mouth.LowerOuter) + distance(mouth.UpperInner, mouth.LowerInner)) / 2
	horizontal := distance(mouth.LeftCorner, mouth.RightCorner)
	if horizontal == 0 {
		return 0
	}
	return vertical / horizontal
}

// ClassifyMouth maps a mouth aspect ratio to a state.
func ClassifyMouth(ratio float64) MouthState {
	if ratio > marOpenThreshold {
		return MouthOpen
	}
	return MouthClosed
}

// Verify checks the closed frame then the open frame. A frame with no
// detectable landmarks is a rejection for that frame's expectation, not
// an internal error.
func (v *LivenessValidator) Verify(ctx context.Context, closedImagePath string, openImagePath string) error {
	if err := v.verifyFrame(ctx, closedImagePath, MouthClosed, ReasonLivenessClosedFailed); err != nil {
		return err
	}
	return v.verifyFrame(ctx, openImagePath, MouthOpen, ReasonLivenessOpenFailed)
}

func (v *LivenessValidator) verifyFrame(ctx context.Context, imagePath string, expected MouthState, reason RejectionReason) error {
	landmarks, err := v.Landmarker.Locate(ctx, imagePath)
	if err != nil {
		return &TransientError{Op: "landmark detection", Err: err}
	}
	if len(landmarks) == 0 {
		return newRejection(reason, "no face landmarks found in liveness frame", true)
	}

	state := ClassifyMouth(MouthAspectRatio(landmarks[0].Mouth))
	if state != expected {
		return newRejection(reason, "mouth state did not match the expected challenge step", true)
	}
	return nil
}

func distance(a, b image.Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
