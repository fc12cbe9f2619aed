package pipeline

import (
	"context"
	"image"
	"testing"
)

func TestMarkerRuleSatisfied(t *testing.T) {
	tests := []struct {
		name  string
		rule  MarkerRule
		found map[MarkerKind]bool
		want  bool
	}{
		{
			name: "either logo accepts primary logo",
			rule: MarkerRule{Clauses: [][]MarkerKind{
				{MarkerLogoPrimary, MarkerPrimaryID, MarkerCompareID},
				{MarkerLogoAlternate, MarkerPrimaryID, MarkerCompareID},
			}},
			found: map[MarkerKind]bool{MarkerLogoPrimary: true, MarkerPrimaryID: true, MarkerCompareID: true},
			want:  true,
		},
		{
			name: "either logo accepts alternate logo",
			rule: MarkerRule{Clauses: [][]MarkerKind{
				{MarkerLogoPrimary, MarkerPrimaryID, MarkerCompareID},
				{MarkerLogoAlternate, MarkerPrimaryID, MarkerCompareID},
			}},
			found: map[MarkerKind]bool{MarkerLogoAlternate: true, MarkerPrimaryID: true, MarkerCompareID: true},
			want:  true,
		},
		{
			name: "no logo fails",
			rule: MarkerRule{Clauses: [][]MarkerKind{
				{MarkerLogoPrimary, MarkerPrimaryID, MarkerCompareID},
				{MarkerLogoAlternate, MarkerPrimaryID, MarkerCompareID},
			}},
			found: map[MarkerKind]bool{MarkerPrimaryID: true, MarkerCompareID: true},
			want:  false,
		},
		{
			name: "both logos rule rejects a single logo",
			rule: MarkerRule{Clauses: [][]MarkerKind{
				{MarkerLogoPrimary, MarkerLogoAlternate, MarkerPrimaryID, MarkerCompareID},
			}},
			found: map[MarkerKind]bool{MarkerLogoPrimary: true, MarkerPrimaryID: true, MarkerCompareID: true},
			want:  false,
		},
		{
			name: "back rule needs both markers",
			rule: MarkerRule{Clauses: [][]MarkerKind{
				{MarkerBackSeal, MarkerBackStrip},
			}},
			found: map[MarkerKind]bool{MarkerBackSeal: true},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Satisfied(tt.found); got != tt.want {
				t.Errorf("Satisfied() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractDigits(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		length int
		want   string
		wantOk bool
	}{
		{
			name:   "clean 18 digit run",
			raw:    "123456789012345678",
			length: 18,
			want:   "123456789012345678",
			wantOk: true,
		},
		{
			name:   "noise around the digits",
			raw:    "ID: 123456789 <<",
			length: 9,
			want:   "123456789",
			wantOk: true,
		},
		{
			name:   "seventeen digits never pass as eighteen",
			raw:    "12345678901234567",
			length: 18,
			wantOk: false,
		},
		{
			name:   "nineteen digits never pass as eighteen",
			raw:    "1234567890123456789",
			length: 18,
			wantOk: false,
		},
		{
			name:   "letters splitting the run break it",
			raw:    "12345X6789",
			length: 9,
			wantOk: false,
		},
		{
			name:   "second token can carry the payload",
			raw:    "ABC 987654321",
			length: 9,
			want:   "987654321",
			wantOk: true,
		},
		{
			name:   "empty input",
			raw:    "",
			length: 9,
			wantOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDigits(tt.raw, tt.length)
			if tt.wantOk {
				if got == nil {
					t.Fatalf("ExtractDigits(%q, %d) = nil, want %q", tt.raw, tt.length, tt.want)
				}
				if *got != tt.want {
					t.Errorf("ExtractDigits(%q, %d) = %q, want %q", tt.raw, tt.length, *got, tt.want)
				}
				return
			}
			if got != nil {
				t.Errorf("ExtractDigits(%q, %d) = %q, want nil", tt.raw, tt.length, *got)
			}
		})
	}
}

func TestMarkerValidatorExtractsPayloads(t *testing.T) {
	const imagePath = "front.jpg"
	detector := &fakeDetector{detections: map[string][]Detection{
		imagePath: {
			{Kind: MarkerLogoPrimary, Box: image.Rect(0, 0, 40, 40), Confidence: 0.9},
			{Kind: MarkerPrimaryID, Box: image.Rect(10, 200, 200, 230), Confidence: 0.85},
			{Kind: MarkerCompareID, Box: image.Rect(10, 300, 120, 330), Confidence: 0.8},
		},
	}}
	recognizer := &fakeRecognizer{
		readRegionFn: func(path string, region image.Rectangle, opts OCROptions) ([]TextFragment, error) {
			if !opts.DigitsOnly || !opts.SmallCrop || !opts.Sharpen {
				t.Errorf("numeric marker read missing crop options: %+v", opts)
			}
			if region.Min.Y < 250 {
				return []TextFragment{{Text: "1234567890", Confidence: 90}, {Text: "12345678", Confidence: 88}}, nil
			}
			return []TextFragment{{Text: "IDN 123456789", Confidence: 91}}, nil
		},
	}

	validator := &MarkerValidator{Detector: detector, Recognizer: recognizer}
	result, err := validator.Validate(context.Background(), imagePath, FrontMarkerRule())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !result.Satisfied {
		t.Fatal("Validate() rule not satisfied")
	}
	primary := result.Payloads[MarkerPrimaryID]
	if primary == nil || *primary != "123456789012345678" {
		t.Errorf("primary payload = %v, want 123456789012345678", primary)
	}
	compare := result.Payloads[MarkerCompareID]
	if compare == nil || *compare != "123456789" {
		t.Errorf("compare payload = %v, want 123456789", compare)
	}
}

func TestMarkerValidatorUnsatisfiedSkipsOCR(t *testing.T) {
	const imagePath = "front.jpg"
	detector := &fakeDetector{detections: map[string][]Detection{
		imagePath: {
			{Kind: MarkerPrimaryID, Box: image.Rect(10, 200, 200, 230), Confidence: 0.85},
		},
	}}
	recognizer := &fakeRecognizer{
		readRegionFn: func(path string, region image.Rectangle, opts OCROptions) ([]TextFragment, error) {
			t.Fatal("ReadRegion must not run when the rule is unsatisfied")
			return nil, nil
		},
	}

	validator := &MarkerValidator{Detector: detector, Recognizer: recognizer}
	result, err := validator.Validate(context.Background(), imagePath, FrontMarkerRule())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if result.Satisfied {
		t.Error("Validate() rule satisfied, want unsatisfied")
	}
}
