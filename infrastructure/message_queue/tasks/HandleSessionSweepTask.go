package queue_tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"veridoc.io/application/services/verification"
	"veridoc.io/infrastructure/logger"
	mq_types "veridoc.io/infrastructure/message_queue/types"
)

var HandleSessionSweepTaskName mq_types.Queues = "session_sweep"

type SessionSweepPayload struct {
	// RequestedAt is informational, the sweep always uses the wall clock.
	RequestedAt time.Time
}

// HandleSessionSweepTask evicts verification sessions whose TTL has
// lapsed and reclaims their stored face assets.
func HandleSessionSweepTask(ctx context.Context, t *asynq.Task) error {
	var payload SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logger.Error("an error occured while unmarshalling session sweep queue payload", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		return err
	}

	evicted := verification.Service().EvictExpired(time.Now())
	logger.Info("session sweep completed", logger.LoggerOptions{
		Key:  "evicted",
		Data: evicted,
	})
	return nil
}
