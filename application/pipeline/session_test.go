package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veridoc.io/application/constants"
	"veridoc.io/infrastructure/cryptography"
)

const (
	testFrontPath  = "front.jpg"
	testBackPath   = "back.jpg"
	testClosedPath = "closed.jpg"
	testOpenPath   = "open.jpg"

	testPrimaryID = "123456789012345678"
	testCompareID = "123456789"
)

type coordinatorFixture struct {
	coordinator *Coordinator
	detector    *fakeDetector
	recognizer  *fakeRecognizer
	landmarker  *fakeLandmarker
	encoder     *fakeEncoder
	extractor   *fakeExtractor
	records     *memoryRecords
	assets      *memoryAssets
}

// newFixture wires a coordinator whose fakes walk the whole flow
// successfully. Tests mutate individual fakes to force failures.
func newFixture() *coordinatorFixture {
	detector := &fakeDetector{detections: map[string][]Detection{
		testFrontPath: {
			{Kind: MarkerLogoPrimary, Box: image.Rect(0, 0, 40, 40), Confidence: 0.9},
			{Kind: MarkerPrimaryID, Box: image.Rect(10, 200, 200, 230), Confidence: 0.85},
			{Kind: MarkerCompareID, Box: image.Rect(10, 300, 120, 330), Confidence: 0.8},
		},
		testBackPath: {
			{Kind: MarkerBackSeal, Box: image.Rect(0, 0, 60, 60), Confidence: 0.9},
			{Kind: MarkerBackStrip, Box: image.Rect(0, 400, 600, 440), Confidence: 0.9},
		},
	}}
	recognizer := &fakeRecognizer{
		readRegionFn: func(path string, region image.Rectangle, opts OCROptions) ([]TextFragment, error) {
			if region.Min.Y < 250 {
				return []TextFragment{{Text: testPrimaryID, Confidence: 90}}, nil
			}
			return []TextFragment{{Text: testCompareID, Confidence: 90}}, nil
		},
		readFn: func(path string, opts OCROptions) ([]TextFragment, error) {
			return []TextFragment{
				{Text: "DUPONT<<JEAN<<<<<", Confidence: 88},
				{Text: "IDN " + testCompareID, Confidence: 90},
			}, nil
		},
	}
	landmarker := &fakeLandmarker{sets: map[string][]LandmarkSet{
		testClosedPath: {{Mouth: mouthWithRatio(100, 42)}},
		testOpenPath:   {{Mouth: mouthWithRatio(100, 65)}},
	}}
	encoder := &fakeEncoder{responses: [][][]float32{{embeddingAt(0)}, {embeddingAt(0)}}}
	extractor := &fakeExtractor{data: []byte("face-jpeg")}
	records := newMemoryRecords()
	assets := newMemoryAssets()

	coordinator := &Coordinator{
		Markers:  &MarkerValidator{Detector: detector, Recognizer: recognizer},
		Fields:   &TextFieldExtractor{Recognizer: recognizer},
		Liveness: &LivenessValidator{Landmarker: landmarker},
		Matcher:  &FaceMatchEngine{Encoder: encoder, Assets: assets},
		Faces:    extractor,
		Records:  records,
		Hasher:   cryptography.IDHasher,
		Assets:   assets,
		FrontRule: MarkerRule{Name: "either_logo", Clauses: [][]MarkerKind{
			{MarkerLogoPrimary, MarkerPrimaryID, MarkerCompareID},
			{MarkerLogoAlternate, MarkerPrimaryID, MarkerCompareID},
		}},
		BackRule: BackMarkerRule(),
	}
	return &coordinatorFixture{
		coordinator: coordinator,
		detector:    detector,
		recognizer:  recognizer,
		landmarker:  landmarker,
		encoder:     encoder,
		extractor:   extractor,
		records:     records,
		assets:      assets,
	}
}

func TestFullVerificationFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	front, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)
	assert.Equal(t, testPrimaryID, front.PrimaryID)
	assert.Equal(t, testCompareID, front.CompareID)
	assert.True(t, front.FaceReady)

	session, ok := f.coordinator.Snapshot(testCompareID)
	require.True(t, ok)
	assert.Equal(t, StatusAwaitingBack, session.Status)
	exists, _ := f.assets.CheckFileExists(session.FaceAssetRef)
	assert.True(t, exists, "document face must be stored after front validation")

	back, err := f.coordinator.SubmitBack(ctx, testCompareID, testBackPath)
	require.NoError(t, err)
	assert.Equal(t, "DUPONT", back.LastName)
	assert.Equal(t, "JEAN", back.FirstName)

	require.Len(t, f.records.inserted, 1)
	record := f.records.inserted[0]
	assert.Equal(t, cryptography.IDHasher.Hash(testPrimaryID), record.HashedPrimaryID)
	assert.Equal(t, cryptography.IDHasher.Hash(testCompareID), record.HashedCompareID)
	assert.Equal(t, "DUPONT", record.LastName)
	assert.Equal(t, "JEAN", record.FirstName)

	session, ok = f.coordinator.Snapshot(testCompareID)
	require.True(t, ok)
	assert.Equal(t, StatusBackVerified, session.Status)

	verdict, err := f.coordinator.SubmitLivenessAndMatch(ctx, testCompareID, testClosedPath, testOpenPath)
	require.NoError(t, err)
	assert.True(t, verdict.Match)

	assert.Equal(t, 0, f.coordinator.SessionCount(), "completed session must be removed")
	assert.Equal(t, 0, f.assets.count(), "face asset must be reclaimed")
}

func TestFrontDuplicateIdentity(t *testing.T) {
	f := newFixture()
	f.records.existing["hashedPrimaryID:"+cryptography.IDHasher.Hash(testPrimaryID)] = true

	_, err := f.coordinator.SubmitFront(context.Background(), testFrontPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonDuplicateIdentity, rejection.Reason)
	assert.True(t, rejection.StopCapture)
	assert.Equal(t, 0, f.coordinator.SessionCount())
	assert.Equal(t, 0, f.assets.count())
}

func TestFrontMissingMarkers(t *testing.T) {
	f := newFixture()
	f.detector.detections[testFrontPath] = []Detection{
		{Kind: MarkerPrimaryID, Box: image.Rect(10, 200, 200, 230), Confidence: 0.85},
	}

	_, err := f.coordinator.SubmitFront(context.Background(), testFrontPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonMissingMarkers, rejection.Reason)
	assert.False(t, rejection.StopCapture, "client may retry with a better shot")
}

func TestFrontMalformedIdentifier(t *testing.T) {
	f := newFixture()
	f.recognizer.readRegionFn = func(path string, region image.Rectangle, opts OCROptions) ([]TextFragment, error) {
		if region.Min.Y < 250 {
			// one digit short
			return []TextFragment{{Text: testPrimaryID[:17], Confidence: 90}}, nil
		}
		return []TextFragment{{Text: testCompareID, Confidence: 90}}, nil
	}

	_, err := f.coordinator.SubmitFront(context.Background(), testFrontPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonMalformedIdentifier, rejection.Reason)
	assert.Equal(t, 0, f.coordinator.SessionCount())
}

func TestFrontNoFaceFound(t *testing.T) {
	f := newFixture()
	f.extractor.data = nil
	f.extractor.err = ErrNoFaceFound

	_, err := f.coordinator.SubmitFront(context.Background(), testFrontPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonNoFaceFound, rejection.Reason)
	assert.Equal(t, 0, f.coordinator.SessionCount())
}

func TestConcurrentFrontForSameDocument(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)

	_, err = f.coordinator.SubmitFront(ctx, testFrontPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonSessionWrongStage, rejection.Reason)
	assert.Equal(t, 1, f.coordinator.SessionCount(), "first session must survive")
}

func TestBackWithoutSession(t *testing.T) {
	f := newFixture()

	_, err := f.coordinator.SubmitBack(context.Background(), testCompareID, testBackPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonSessionNotFound, rejection.Reason)
	assert.True(t, rejection.StopCapture)
}

func TestLivenessBeforeBackIsWrongStage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)

	_, err = f.coordinator.SubmitLivenessAndMatch(ctx, testCompareID, testClosedPath, testOpenPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonSessionWrongStage, rejection.Reason)

	session, ok := f.coordinator.Snapshot(testCompareID)
	require.True(t, ok, "session must survive an out of order call")
	assert.Equal(t, StatusAwaitingBack, session.Status)
}

func TestBackIdentifierMismatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)

	f.recognizer.readFn = func(path string, opts OCROptions) ([]TextFragment, error) {
		return []TextFragment{
			{Text: "DUPONT<<JEAN<<<<<", Confidence: 88},
			{Text: "IDN 999999999", Confidence: 90},
		}, nil
	}

	_, err = f.coordinator.SubmitBack(ctx, testCompareID, testBackPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonBackIDMismatch, rejection.Reason)
	assert.True(t, rejection.StopCapture)
	assert.Equal(t, 0, f.coordinator.SessionCount(), "mismatch terminates the session")
	assert.Equal(t, 0, f.assets.count(), "face asset must be reclaimed")
	assert.Empty(t, f.records.inserted, "no record may be committed on mismatch")
}

func TestBackDuplicateAtCommit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)

	f.records.duplicate = true

	_, err = f.coordinator.SubmitBack(ctx, testCompareID, testBackPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonDuplicateIdentity, rejection.Reason)
	assert.True(t, rejection.StopCapture)
	assert.Equal(t, 0, f.coordinator.SessionCount())
}

func TestBackTransientFailureKeepsSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)

	f.recognizer.readFn = func(path string, opts OCROptions) ([]TextFragment, error) {
		return nil, errors.New("tesseract crashed")
	}

	_, err = f.coordinator.SubmitBack(ctx, testCompareID, testBackPath)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	session, ok := f.coordinator.Snapshot(testCompareID)
	require.True(t, ok, "session must survive a transient failure")
	assert.Equal(t, StatusAwaitingBack, session.Status)
	assert.False(t, session.busy, "session must be claimable again")
	assert.Equal(t, 1, f.assets.count(), "face asset must be kept for the retry")

	// the retry succeeds once the dependency recovers
	f.recognizer.readFn = func(path string, opts OCROptions) ([]TextFragment, error) {
		return []TextFragment{
			{Text: "DUPONT<<JEAN<<<<<", Confidence: 88},
			{Text: "IDN " + testCompareID, Confidence: 90},
		}, nil
	}
	back, err := f.coordinator.SubmitBack(ctx, testCompareID, testBackPath)
	require.NoError(t, err)
	assert.Equal(t, "DUPONT", back.LastName)
}

func TestBackUnreadableFieldsTerminatesSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)

	// markers are fine but the printed fields are illegible
	f.recognizer.readFn = func(path string, opts OCROptions) ([]TextFragment, error) {
		return []TextFragment{{Text: "~~~ %%% ~~~", Confidence: 12}}, nil
	}

	_, err = f.coordinator.SubmitBack(ctx, testCompareID, testBackPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonBackOCRFailed, rejection.Reason)
	assert.True(t, rejection.StopCapture, "the session is gone, retaking the shot cannot help")
	require.NotNil(t, rejection.ResponseCode())
	assert.Equal(t, constants.BACK_OCR_FAILED, *rejection.ResponseCode())
	assert.EqualValues(t, 1, *rejection.ResponseCode()%10, "code must carry the stop capture digit")
	assert.Equal(t, 0, f.coordinator.SessionCount())
	assert.Equal(t, 0, f.assets.count())
}

func TestLivenessFailureTerminatesSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)
	_, err = f.coordinator.SubmitBack(ctx, testCompareID, testBackPath)
	require.NoError(t, err)

	// both frames closed, the open step fails
	f.landmarker.sets[testOpenPath] = []LandmarkSet{{Mouth: mouthWithRatio(100, 42)}}

	_, err = f.coordinator.SubmitLivenessAndMatch(ctx, testCompareID, testClosedPath, testOpenPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonLivenessOpenFailed, rejection.Reason)
	assert.True(t, rejection.StopCapture)
	require.NotNil(t, rejection.ResponseCode())
	assert.Equal(t, constants.LIVENESS_OPEN_EXPECTED, *rejection.ResponseCode())
	assert.EqualValues(t, 1, *rejection.ResponseCode()%10, "code must carry the stop capture digit")
	assert.Equal(t, 0, f.coordinator.SessionCount())
	assert.Equal(t, 0, f.assets.count())
}

func TestMatchTransientFailureKeepsSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)
	_, err = f.coordinator.SubmitBack(ctx, testCompareID, testBackPath)
	require.NoError(t, err)

	// liveness passes but the first embedding call dies
	f.encoder.errs = []error{errors.New("embedding model crashed"), nil, nil}
	f.encoder.responses = [][][]float32{nil, {embeddingAt(0)}, {embeddingAt(0)}}

	_, err = f.coordinator.SubmitLivenessAndMatch(ctx, testCompareID, testClosedPath, testOpenPath)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	session, ok := f.coordinator.Snapshot(testCompareID)
	require.True(t, ok, "session must survive a transient match failure")
	assert.Equal(t, StatusBackVerified, session.Status)
	assert.False(t, session.busy, "session must be claimable again")
	assert.Equal(t, 1, f.assets.count(), "face asset must be kept for the retry")

	// the retry runs the full stage again once the encoder recovers
	verdict, err := f.coordinator.SubmitLivenessAndMatch(ctx, testCompareID, testClosedPath, testOpenPath)
	require.NoError(t, err)
	assert.True(t, verdict.Match)
	assert.Equal(t, 0, f.coordinator.SessionCount())
	assert.Equal(t, 0, f.assets.count())
}

func TestFaceMismatchTerminatesSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)
	_, err = f.coordinator.SubmitBack(ctx, testCompareID, testBackPath)
	require.NoError(t, err)

	// distance 1.0 is far beyond the default tolerance
	f.encoder.responses = [][][]float32{{embeddingAt(0)}, {embeddingAt(1)}}

	verdict, err := f.coordinator.SubmitLivenessAndMatch(ctx, testCompareID, testClosedPath, testOpenPath)
	rejection, ok := AsRejection(err)
	require.True(t, ok, "error = %v", err)
	assert.Equal(t, ReasonFaceMismatch, rejection.Reason)
	assert.True(t, rejection.StopCapture)
	require.NotNil(t, verdict)
	assert.False(t, verdict.Match)
	assert.Equal(t, 0, f.coordinator.SessionCount())
	assert.Equal(t, 0, f.assets.count())
}

func TestEvictExpiredReclaimsAbandonedSessions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.coordinator.SubmitFront(ctx, testFrontPath)
	require.NoError(t, err)
	require.Equal(t, 1, f.coordinator.SessionCount())

	evicted := f.coordinator.EvictExpired(time.Now())
	assert.Equal(t, 0, evicted, "fresh session must not be evicted")

	evicted = f.coordinator.EvictExpired(time.Now().Add(DefaultSessionTTL + time.Minute))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 0, f.coordinator.SessionCount())
	assert.Equal(t, 0, f.assets.count(), "eviction must reclaim the face asset")
}
