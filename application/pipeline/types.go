package pipeline

import (
	"context"
	"image"

	"veridoc.io/entities"
)

// Detection is a single located marker on a document image.
type Detection struct {
	Kind       MarkerKind
	Box        image.Rectangle
	Confidence float64
}

// ObjectDetector locates document markers in an image on disk.
type ObjectDetector interface {
	Detect(ctx context.Context, imagePath string) ([]Detection, error)
}

// OCROptions tune a text recognition pass.
type OCROptions struct {
	// Paragraph groups fragments into text blocks instead of single words.
	Paragraph bool
	// DigitsOnly restricts the recogniser to the 0-9 character set.
	DigitsOnly bool
	// SmallCrop lowers the confidence and contrast thresholds, tuned for
	// tiny marker crops.
	SmallCrop bool
	// Sharpen applies a sharpening kernel before recognition.
	Sharpen bool
}

// TextFragment is one recognised piece of text.
type TextFragment struct {
	Text       string
	Confidence float64
}

// TextRecognizer reads text from an image on disk.
type TextRecognizer interface {
	Read(ctx context.Context, imagePath string, opts OCROptions) ([]TextFragment, error)
	// ReadRegion reads text from a sub-rectangle of the image.
	ReadRegion(ctx context.Context, imagePath string, region image.Rectangle, opts OCROptions) ([]TextFragment, error)
}

// MouthPoints are the landmark positions the liveness check needs.
type MouthPoints struct {
	LeftCorner  image.Point
	RightCorner image.Point
	UpperOuter  image.Point
	LowerOuter  image.Point
	UpperInner  image.Point
	LowerInner  image.Point
}

// LandmarkSet is the landmark group located for one face.
type LandmarkSet struct {
	Mouth MouthPoints
}

// FaceLandmarker locates facial landmark sets in an image on disk.
// An image with no detectable face yields an empty slice, not an error.
type FaceLandmarker interface {
	Locate(ctx context.Context, imagePath string) ([]LandmarkSet, error)
}

// FaceEncoder computes one fixed-length embedding per face found in the
// image. Zero faces yields an empty slice.
type FaceEncoder interface {
	Encode(ctx context.Context, imagePath string) ([][]float32, error)
}

// FaceExtractor isolates the largest face region from a document image
// and returns it encoded as JPEG bytes. Returns ErrNoFaceFound when the
// image contains no detectable face.
type FaceExtractor interface {
	ExtractLargestFace(ctx context.Context, imagePath string) ([]byte, error)
}

// RecordStore is the durable dedup store. Insert must be atomic with
// respect to the uniqueness of both hash columns and return
// ErrDuplicateRecord on a collision.
type RecordStore interface {
	ExistsBy(field string, digest string) (bool, error)
	Insert(ctx context.Context, record entities.DocumentRecord) error
}

// FaceAssetStore owns the transient face crops extracted from documents.
type FaceAssetStore interface {
	SaveFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	CheckFileExists(name string) (bool, error)
	DeleteFile(name string) error
}
