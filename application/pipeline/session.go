package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"veridoc.io/entities"
	"veridoc.io/infrastructure/cryptography"
	"veridoc.io/infrastructure/logger"
)

// SessionStatus tracks where a verification attempt is in the flow.
type SessionStatus string

const (
	StatusAwaitingFront SessionStatus = "AwaitingFront"
	StatusFrontVerified SessionStatus = "FrontVerified"
	StatusAwaitingBack  SessionStatus = "AwaitingBack"
	StatusBackVerified  SessionStatus = "BackVerified"
	StatusCompleted     SessionStatus = "Completed"
	StatusRejected      SessionStatus = "Rejected"
)

// VerificationSession ties the front, back and liveness requests of one
// attempt together. It lives only in the coordinator's map and is never
// persisted; the durable DocumentRecord is written at back validation.
type VerificationSession struct {
	CorrelationID   string
	PrimaryID       string
	HashedPrimaryID string
	HashedCompareID string
	Status          SessionStatus
	FaceAssetRef    string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// busy blocks concurrent duplicate stage calls for the same id.
	busy bool
}

// FrontResult is returned to the client after a successful front upload.
type FrontResult struct {
	PrimaryID string
	CompareID string
	FaceReady bool
}

// BackResult is returned after a successful back upload.
type BackResult struct {
	LastName  string
	FirstName string
}

// DefaultSessionTTL bounds how long a front-verified session waits for
// its back upload before eviction reclaims it.
const DefaultSessionTTL = 15 * time.Minute

const defaultStageTimeout = 30 * time.Second

// Coordinator sequences the verification checks across independent
// requests. Sessions are keyed per correlation id in a guarded map so
// parallel verifications never cross-talk.
type Coordinator struct {
	Markers      *MarkerValidator
	Fields       *TextFieldExtractor
	Liveness     *LivenessValidator
	Matcher      *FaceMatchEngine
	Faces        FaceExtractor
	Records      RecordStore
	Hasher       cryptography.IdentifierHasher
	Assets       FaceAssetStore
	FrontRule    MarkerRule
	BackRule     MarkerRule
	SessionTTL   time.Duration
	StageTimeout time.Duration
	// MaxInflight bounds concurrent inference work so one slow model
	// call cannot stall unrelated sessions.
	MaxInflight int64

	mu       sync.RWMutex
	sessions map[string]*VerificationSession
	gate     *semaphore.Weighted
	initOnce sync.Once
}

func (c *Coordinator) init() {
	c.initOnce.Do(func() {
		c.sessions = map[string]*VerificationSession{}
		if c.SessionTTL == 0 {
			c.SessionTTL = DefaultSessionTTL
		}
		if c.StageTimeout == 0 {
			c.StageTimeout = defaultStageTimeout
		}
		if c.MaxInflight == 0 {
			c.MaxInflight = 4
		}
		c.gate = semaphore.NewWeighted(c.MaxInflight)
	})
}

// enterStage applies the stage deadline and takes an inference slot.
// The returned release must be called once the stage is done.
func (c *Coordinator) enterStage(ctx context.Context, op string) (context.Context, func(), error) {
	c.init()
	stageCtx, cancel := context.WithTimeout(ctx, c.StageTimeout)
	if err := c.gate.Acquire(stageCtx, 1); err != nil {
		cancel()
		return nil, nil, &TransientError{Op: op, Err: err}
	}
	release := func() {
		c.gate.Release(1)
		cancel()
	}
	return stageCtx, release, nil
}

var (
	primaryIDRegex = regexp.MustCompile(`^\d{18}$`)
	compareIDRegex = regexp.MustCompile(`^\d{9}$`)
)

// SubmitFront validates a front document image. On success a session is
// created keyed by the compare id and the largest document face is
// stored as the session's FaceAsset.
func (c *Coordinator) SubmitFront(ctx context.Context, imagePath string) (*FrontResult, error) {
	stageCtx, release, err := c.enterStage(ctx, "front validation")
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := c.Markers.Validate(stageCtx, imagePath, c.FrontRule)
	if err != nil {
		return nil, err
	}
	if !result.Satisfied {
		return nil, newRejection(ReasonMissingMarkers, "required document markers were not found", false)
	}

	primaryID := result.Payloads[MarkerPrimaryID]
	compareID := result.Payloads[MarkerCompareID]
	if primaryID == nil || !primaryIDRegex.MatchString(*primaryID) {
		return nil, newRejection(ReasonMalformedIdentifier, "primary document identifier could not be read", false)
	}
	if compareID == nil || !compareIDRegex.MatchString(*compareID) {
		return nil, newRejection(ReasonMalformedIdentifier, "secondary document identifier could not be read", false)
	}

	hashedPrimary := c.Hasher.Hash(*primaryID)
	hashedCompare := c.Hasher.Hash(*compareID)

	session := &VerificationSession{
		CorrelationID:   *compareID,
		PrimaryID:       *primaryID,
		HashedPrimaryID: hashedPrimary,
		HashedCompareID: hashedCompare,
		Status:          StatusFrontVerified,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
		busy:            true,
	}

	// claim the correlation id before the dedup check so two concurrent
	// uploads of the same document cannot both proceed
	c.mu.Lock()
	if _, exists := c.sessions[session.CorrelationID]; exists {
		c.mu.Unlock()
		return nil, newRejection(ReasonSessionWrongStage, "a verification for this document is already in progress", true)
	}
	c.sessions[session.CorrelationID] = session
	c.mu.Unlock()

	frontResult, err := c.completeFront(stageCtx, session, imagePath)
	if err != nil {
		c.discard(session.CorrelationID, false)
		return nil, err
	}
	return frontResult, nil
}

func (c *Coordinator) completeFront(ctx context.Context, session *VerificationSession, imagePath string) (*FrontResult, error) {
	for _, check := range []struct {
		field  string
		digest string
	}{
		{"hashedPrimaryID", session.HashedPrimaryID},
		{"hashedCompareID", session.HashedCompareID},
	} {
		exists, err := c.Records.ExistsBy(check.field, check.digest)
		if err != nil {
			return nil, fmt.Errorf("dedup lookup failed: %w", err)
		}
		if exists {
			return nil, newRejection(ReasonDuplicateIdentity, "this document has already been registered", true)
		}
	}

	faceData, err := c.Faces.ExtractLargestFace(ctx, imagePath)
	if err != nil {
		if err == ErrNoFaceFound {
			return nil, newRejection(ReasonNoFaceFound, "no face found on the document front", false)
		}
		return nil, &TransientError{Op: "document face extraction", Err: err}
	}

	assetRef := "faces/" + session.CorrelationID + ".jpg"
	if err := c.Assets.SaveFile(assetRef, faceData); err != nil {
		return nil, &TransientError{Op: "face asset store", Err: err}
	}

	c.mu.Lock()
	session.FaceAssetRef = assetRef
	session.Status = StatusAwaitingBack
	session.UpdatedAt = time.Now()
	session.busy = false
	c.mu.Unlock()

	return &FrontResult{
		PrimaryID: session.PrimaryID,
		CompareID: session.CorrelationID,
		FaceReady: true,
	}, nil
}

// SubmitBack validates the back image for an existing session, cross
// checks the extracted identifier against the correlation id and
// commits the durable DocumentRecord exactly once.
func (c *Coordinator) SubmitBack(ctx context.Context, correlationID string, imagePath string) (*BackResult, error) {
	session, err := c.claim(correlationID, StatusAwaitingBack)
	if err != nil {
		return nil, err
	}

	stageCtx, release, err := c.enterStage(ctx, "back validation")
	if err != nil {
		c.unclaim(session)
		return nil, err
	}
	defer release()

	result, err := c.Markers.Validate(stageCtx, imagePath, c.BackRule)
	if err != nil {
		c.unclaim(session)
		return nil, err
	}
	if !result.Satisfied {
		c.discard(correlationID, true)
		return nil, newRejection(ReasonBackNoMarkers, "required back markers were not found", true)
	}

	fields, err := c.Fields.Extract(stageCtx, imagePath)
	if err != nil {
		if IsTransient(err) {
			c.unclaim(session)
			return nil, err
		}
		c.discard(correlationID, true)
		return nil, err
	}

	if fields.CompareID != correlationID {
		c.discard(correlationID, true)
		return nil, newRejection(ReasonBackIDMismatch, "document back does not belong to the submitted front", true)
	}

	record := entities.DocumentRecord{
		HashedPrimaryID: session.HashedPrimaryID,
		HashedCompareID: session.HashedCompareID,
		LastName:        fields.LastName,
		FirstName:       fields.FirstName,
	}
	if err := c.Records.Insert(stageCtx, record); err != nil {
		if err == ErrDuplicateRecord {
			c.discard(correlationID, true)
			return nil, newRejection(ReasonDuplicateIdentity, "this document has already been registered", true)
		}
		// storage failure is fatal for the request but the session keeps
		// its stage so the client can retry
		c.unclaim(session)
		return nil, fmt.Errorf("record commit failed: %w", err)
	}

	c.mu.Lock()
	session.Status = StatusBackVerified
	session.UpdatedAt = time.Now()
	session.busy = false
	c.mu.Unlock()

	return &BackResult{
		LastName:  fields.LastName,
		FirstName: fields.FirstName,
	}, nil
}

// SubmitLivenessAndMatch runs the two-shot mouth challenge and compares
// the stored document face against the open-mouth probe frame. Any
// verdict or permanent rejection terminates the session and reclaims
// its FaceAsset; a transient failure leaves the session claimable so
// the client can resubmit.
func (c *Coordinator) SubmitLivenessAndMatch(ctx context.Context, correlationID string, closedImagePath string, openImagePath string) (*MatchVerdict, error) {
	session, err := c.claim(correlationID, StatusBackVerified)
	if err != nil {
		return nil, err
	}

	stageCtx, release, err := c.enterStage(ctx, "liveness and match")
	if err != nil {
		c.unclaim(session)
		return nil, err
	}
	defer release()

	if err := c.Liveness.Verify(stageCtx, closedImagePath, openImagePath); err != nil {
		if IsTransient(err) {
			c.unclaim(session)
			return nil, err
		}
		c.discard(correlationID, true)
		return nil, err
	}

	verdict, err := c.Matcher.Match(stageCtx, session.FaceAssetRef, openImagePath)
	if err != nil {
		if IsTransient(err) {
			c.unclaim(session)
			return nil, err
		}
		// the match engine already consumed the FaceAsset
		c.discard(correlationID, false)
		return nil, err
	}

	if !verdict.Match {
		c.discard(correlationID, false)
		return verdict, newRejection(ReasonFaceMismatch, "submitted face does not match the document face", true)
	}

	c.mu.Lock()
	session.Status = StatusCompleted
	c.mu.Unlock()
	c.discard(correlationID, false)

	return verdict, nil
}

// claim fetches the session for a stage call and marks it busy. Out of
// order, duplicate or concurrent calls are rejected deterministically
// with no side effects.
func (c *Coordinator) claim(correlationID string, expected SessionStatus) (*VerificationSession, error) {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.sessions[correlationID]
	if !ok {
		return nil, newRejection(ReasonSessionNotFound, "no verification in progress for this id", true)
	}
	if session.busy || session.Status != expected {
		return nil, newRejection(ReasonSessionWrongStage, "verification is not at the expected step", true)
	}
	session.busy = true
	return session, nil
}

func (c *Coordinator) unclaim(session *VerificationSession) {
	c.mu.Lock()
	session.busy = false
	c.mu.Unlock()
}

// discard removes the session and, when it still owns its FaceAsset,
// deletes the asset. Removal from the map is the single claim point, so
// the asset delete runs exactly once even under concurrent callers.
func (c *Coordinator) discard(correlationID string, deleteAsset bool) {
	c.mu.Lock()
	session, ok := c.sessions[correlationID]
	if ok {
		delete(c.sessions, correlationID)
	}
	c.mu.Unlock()

	if !ok || !deleteAsset || session.FaceAssetRef == "" {
		return
	}
	if err := c.Assets.DeleteFile(session.FaceAssetRef); err != nil {
		logger.Error("failed to delete face asset for discarded session", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		}, logger.LoggerOptions{
			Key:  "correlationID",
			Data: correlationID,
		})
	}
}

// SessionCount reports how many verifications are currently in flight.
func (c *Coordinator) SessionCount() int {
	c.init()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Snapshot returns a copy of the session for inspection.
func (c *Coordinator) Snapshot(correlationID string) (VerificationSession, bool) {
	c.init()
	c.mu.RLock()
	defer c.mu.RUnlock()
	session, ok := c.sessions[correlationID]
	if !ok {
		return VerificationSession{}, false
	}
	return *session, true
}

// EvictExpired reclaims abandoned sessions and their FaceAssets. Runs
// from the background sweep task.
func (c *Coordinator) EvictExpired(now time.Time) int {
	c.init()
	c.mu.Lock()
	expired := []*VerificationSession{}
	for correlationID, session := range c.sessions {
		if session.busy {
			continue
		}
		if now.Sub(session.UpdatedAt) > c.SessionTTL {
			delete(c.sessions, correlationID)
			expired = append(expired, session)
		}
	}
	c.mu.Unlock()

	for _, session := range expired {
		if session.FaceAssetRef == "" {
			continue
		}
		if err := c.Assets.DeleteFile(session.FaceAssetRef); err != nil {
			logger.Error("failed to delete face asset for evicted session", logger.LoggerOptions{
				Key:  "error",
				Data: err,
			}, logger.LoggerOptions{
				Key:  "correlationID",
				Data: session.CorrelationID,
			})
		}
	}

	if len(expired) > 0 {
		logger.Info("evicted abandoned verification sessions", logger.LoggerOptions{
			Key:  "count",
			Data: len(expired),
		})
	}
	return len(expired)
}
