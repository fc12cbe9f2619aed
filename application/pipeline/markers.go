package pipeline

import (
	"context"
	"image"
	"os"
	"regexp"
	"strconv"
	"strings"

	"veridoc.io/infrastructure/logger"
)

// MarkerKind identifies one detectable visual feature on a document.
// The set is closed; the detector's class ids map onto it 1:1.
type MarkerKind int

const (
	MarkerLogoPrimary MarkerKind = iota
	MarkerLogoAlternate
	MarkerPrimaryID
	MarkerCompareID
	MarkerBackSeal
	MarkerBackStrip
)

func (k MarkerKind) String() string {
	switch k {
	case MarkerLogoPrimary:
		return "logo_primary"
	case MarkerLogoAlternate:
		return "logo_alternate"
	case MarkerPrimaryID:
		return "primary_id"
	case MarkerCompareID:
		return "compare_id"
	case MarkerBackSeal:
		return "back_seal"
	case MarkerBackStrip:
		return "back_strip"
	}
	return "unknown"
}

// markerSpec describes how to treat one marker kind once detected.
// Digits == 0 means the marker carries no numeric payload.
type markerSpec struct {
	Digits       int
	PadX         int
	PadY         int
	ExtraLeftPad int
}

// The compare id block is printed right of a text label, so its crop
// needs extra left padding to capture the full prefix for the OCR pass.
var markerSpecs = map[MarkerKind]markerSpec{
	MarkerLogoPrimary:   {},
	MarkerLogoAlternate: {},
	MarkerPrimaryID:     {Digits: 18, PadX: 12, PadY: 8},
	MarkerCompareID:     {Digits: 9, PadX: 12, PadY: 8, ExtraLeftPad: 48},
	MarkerBackSeal:      {},
	MarkerBackStrip:     {},
}

// MarkerRule is a declarative acceptance rule: the image passes when
// every kind of at least one clause was detected.
type MarkerRule struct {
	Name    string
	Clauses [][]MarkerKind
}

// Satisfied reports whether found covers one of the rule's clauses.
func (r MarkerRule) Satisfied(found map[MarkerKind]bool) bool {
	for _, clause := range r.Clauses {
		covered := true
		for _, kind := range clause {
			if !found[kind] {
				covered = false
				break
			}
		}
		if covered {
			return true
		}
	}
	return false
}

// FrontMarkerRule builds the front acceptance rule from configuration.
// The accepted logo combination is a business rule that has changed
// before, so it is config, not code.
func FrontMarkerRule() MarkerRule {
	switch os.Getenv("FRONT_MARKER_RULE") {
	case "both_logos":
		return MarkerRule{
			Name: "both_logos",
			Clauses: [][]MarkerKind{
				{MarkerLogoPrimary, MarkerLogoAlternate, MarkerPrimaryID, MarkerCompareID},
			},
		}
	default:
		return MarkerRule{
			Name: "either_logo",
			Clauses: [][]MarkerKind{
				{MarkerLogoPrimary, MarkerPrimaryID, MarkerCompareID},
				{MarkerLogoAlternate, MarkerPrimaryID, MarkerCompareID},
			},
		}
	}
}

func BackMarkerRule() MarkerRule {
	return MarkerRule{
		Name: "back_default",
		Clauses: [][]MarkerKind{
			{MarkerBackSeal, MarkerBackStrip},
		},
	}
}

// MarkerDetectionResult is the ephemeral outcome of one validation pass.
// Payloads holds the extracted numeric value per marker, nil when the
// marker was found but its digits could not be read.
type MarkerDetectionResult struct {
	Found     map[MarkerKind]bool
	Payloads  map[MarkerKind]*string
	Satisfied bool
}

// MarkerValidator checks a document image against an acceptance rule and
// extracts the numeric payloads of the markers the rule found.
type MarkerValidator struct {
	Detector   ObjectDetector
	Recognizer TextRecognizer
}

// Validate runs detection, applies the rule, and OCRs every numeric
// marker present. A missing payload is reported as nil, not an error;
// the caller decides how hard to fail.
func (v *MarkerValidator) Validate(ctx context.Context, imagePath string, rule MarkerRule) (*MarkerDetectionResult, error) {
	detections, err := v.Detector.Detect(ctx, imagePath)
	if err != nil {
		return nil, &TransientError{Op: "marker detection", Err: err}
	}

	result := &MarkerDetectionResult{
		Found:    map[MarkerKind]bool{},
		Payloads: map[MarkerKind]*string{},
	}
	boxes := map[MarkerKind]image.Rectangle{}
	for _, detection := range detections {
		// keep the first box per kind, detections are confidence ordered
		if !result.Found[detection.Kind] {
			boxes[detection.Kind] = detection.Box
		}
		result.Found[detection.Kind] = true
	}

	result.Satisfied = rule.Satisfied(result.Found)
	if !result.Satisfied {
		return result, nil
	}

	for kind, box := range boxes {
		spec := markerSpecs[kind]
		if spec.Digits == 0 {
			continue
		}
		payload, err := v.readNumericMarker(ctx, imagePath, box, spec)
		if err != nil {
			return nil, err
		}
		result.Payloads[kind] = payload
	}

	return result, nil
}

func (v *MarkerValidator) readNumericMarker(ctx context.Context, imagePath string, box image.Rectangle, spec markerSpec) (*string, error) {
	region := image.Rect(
		box.Min.X-spec.PadX-spec.ExtraLeftPad,
		box.Min.Y-spec.PadY,
		box.Max.X+spec.PadX,
		box.Max.Y+spec.PadY,
	)

	fragments, err := v.Recognizer.ReadRegion(ctx, imagePath, region, OCROptions{
		DigitsOnly: true,
		SmallCrop:  true,
		Sharpen:    true,
	})
	if err != nil {
		return nil, &TransientError{Op: "marker ocr", Err: err}
	}

	raw := strings.Builder{}
	for _, fragment := range fragments {
		raw.WriteString(fragment.Text)
	}

	payload := ExtractDigits(raw.String(), spec.Digits)
	if payload == nil {
		logger.Warning("numeric marker payload unreadable", logger.LoggerOptions{
			Key:  "raw",
			Data: raw.String(),
		})
	}
	return payload, nil
}

var nonDigitRegex = regexp.MustCompile(`\D+`)

// ExtractDigits strips non-digit noise from raw OCR output and returns
// the first digit run of exactly the required length, or nil. A partial
// length string is never returned.
func ExtractDigits(raw string, length int) *string {
	cleaned := nonDigitRegex.ReplaceAllString(raw, " ")
	pattern := regexp.MustCompile(`^\d{` + strconv.Itoa(length) + `}$`)
	for _, token := range strings.Fields(cleaned) {
		if pattern.MatchString(token) {
			return &token
		}
	}
	return nil
}
