package asynq

import (
	"encoding/json"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"veridoc.io/infrastructure/logger"
	queue_tasks "veridoc.io/infrastructure/message_queue/tasks"
	mq_types "veridoc.io/infrastructure/message_queue/types"
)

type AsynqBroker struct {
	Client *asynq.Client
}

func (aq *AsynqBroker) Start() {
	redisConnOpt := asynq.RedisClientOpt{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}

	aq.Client = asynq.NewClient(redisConnOpt)

	srv := asynq.NewServer(
		redisConnOpt,
		asynq.Config{
			Concurrency: 20,
			Queues: map[string]int{
				string(mq_types.High):   7,
				string(mq_types.Medium): 2,
				string(mq_types.Low):    1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(string(queue_tasks.HandleSessionSweepTaskName), queue_tasks.HandleSessionSweepTask)

	go aq.startSweepScheduler(redisConnOpt)
	srv.Run(mux)
}

// startSweepScheduler enqueues the session sweep once a minute.
func (aq *AsynqBroker) startSweepScheduler(redisConnOpt asynq.RedisClientOpt) {
	scheduler := asynq.NewScheduler(redisConnOpt, nil)
	payload, _ := json.Marshal(queue_tasks.SessionSweepPayload{RequestedAt: time.Now()})
	_, err := scheduler.Register("@every 1m",
		asynq.NewTask(string(queue_tasks.HandleSessionSweepTaskName), payload),
		asynq.Queue(string(mq_types.Low)))
	if err != nil {
		logger.Error("failed to register session sweep schedule", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		return
	}
	if err := scheduler.Run(); err != nil {
		logger.Error("session sweep scheduler stopped", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
	}
}

func (aq *AsynqBroker) Enqueue(task mq_types.QueueTask) {
	if task.TimeOut == 0 {
		task.TimeOut = 60
	}
	aq.Client.Enqueue(asynq.NewTask(string(task.Name), task.Payload),
		asynq.ProcessIn(time.Duration(task.ProcessIn)*time.Second),
		asynq.MaxRetry(10),
		asynq.Timeout(time.Second*time.Duration(task.TimeOut)),
		asynq.Queue(string(task.Priority)))
}
