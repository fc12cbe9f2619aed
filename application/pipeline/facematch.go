package pipeline

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"veridoc.io/application/utils"
	"veridoc.io/infrastructure/logger"
)

// EmbeddingCache memoises document face embeddings between retried
// liveness submissions. Optional; a nil cache disables memoisation.
type EmbeddingCache interface {
	CreateEntry(key string, payload interface{}, ttl time.Duration) bool
	FindOne(key string) *string
	DeleteOne(key string) bool
}

// DefaultMatchTolerance is the embedding distance ceiling for a match.
// Lower is stricter.
const DefaultMatchTolerance = 0.6

// MatchVerdict is the outcome of one face comparison.
type MatchVerdict struct {
	Match     bool
	Distance  float64
	Tolerance float64
}

// FaceMatchEngine compares the stored document face against a freshly
// submitted probe image. It consumes the FaceAsset: whatever the
// outcome, the asset is deleted after the verdict.
type FaceMatchEngine struct {
	Encoder   FaceEncoder
	Assets    FaceAssetStore
	Cache     EmbeddingCache
	Tolerance float64
}

func (e *FaceMatchEngine) tolerance() float64 {
	if e.Tolerance > 0 {
		return e.Tolerance
	}
	return DefaultMatchTolerance
}

// Match produces a verdict for the asset/probe pair. The FaceAsset and
// its cached embedding are deleted exactly once on every path that
// produces a verdict or a permanent rejection. A transient failure keeps
// the asset so the client can retry the stage.
func (e *FaceMatchEngine) Match(ctx context.Context, assetName string, probePath string) (verdict *MatchVerdict, err error) {
	defer func() {
		if IsTransient(err) {
			return
		}
		if deleteErr := e.Assets.DeleteFile(assetName); deleteErr != nil {
			logger.Error("failed to delete face asset after verdict", logger.LoggerOptions{
				Key:  "error",
				Data: deleteErr,
			}, logger.LoggerOptions{
				Key:  "asset",
				Data: assetName,
			})
		}
		if e.Cache != nil {
			e.Cache.DeleteOne(embeddingCacheKey(assetName))
		}
	}()

	documentEmbedding, err := e.documentEmbedding(ctx, assetName)
	if err != nil {
		return nil, err
	}

	probeEmbeddings, err := e.Encoder.Encode(ctx, probePath)
	if err != nil {
		return nil, &TransientError{Op: "probe face encoding", Err: err}
	}
	if len(probeEmbeddings) == 0 {
		return nil, newRejection(ReasonNoFaceFound, "no face found in submitted probe image", false)
	}

	distance := EmbeddingDistance(documentEmbedding, probeEmbeddings[0])
	tolerance := e.tolerance()
	return &MatchVerdict{
		Match:     distance <= tolerance,
		Distance:  distance,
		Tolerance: tolerance,
	}, nil
}

// documentEmbedding encodes the stored face crop, memoised in the cache
// so a retried liveness submission does not re-run the encoder.
func (e *FaceMatchEngine) documentEmbedding(ctx context.Context, assetName string) ([]float32, error) {
	if e.Cache != nil {
		if cached := e.Cache.FindOne(embeddingCacheKey(assetName)); cached != nil {
			var embedding []float32
			if err := json.Unmarshal([]byte(*cached), &embedding); err == nil && len(embedding) != 0 {
				return embedding, nil
			}
		}
	}

	data, err := e.Assets.ReadFile(assetName)
	if err != nil {
		return nil, &TransientError{Op: "face asset read", Err: err}
	}

	tempPath := filepath.Join(os.TempDir(), "veridoc-asset-"+utils.GenerateUULDString()+".jpg")
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return nil, &TransientError{Op: "face asset spill", Err: err}
	}
	defer os.Remove(tempPath)

	embeddings, err := e.Encoder.Encode(ctx, tempPath)
	if err != nil {
		return nil, &TransientError{Op: "document face encoding", Err: err}
	}
	if len(embeddings) == 0 {
		return nil, newRejection(ReasonNoFaceFound, "no face found in stored document face", true)
	}

	if e.Cache != nil {
		if encoded, err := json.Marshal(embeddings[0]); err == nil {
			e.Cache.CreateEntry(embeddingCacheKey(assetName), string(encoded), time.Minute*30)
		}
	}
	return embeddings[0], nil
}

func embeddingCacheKey(assetName string) string {
	return "embedding-" + assetName
}

// EmbeddingDistance is the euclidean distance between two embeddings.
// For a fixed pair of images the distance is fixed, so the match verdict
// is monotonic in the tolerance.
func EmbeddingDistance(a, b []float32) float64 {
	length := len(a)
	if len(b) < length {
		length = len(b)
	}
	sum := 0.0
	for i := 0; i < length; i++ {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
