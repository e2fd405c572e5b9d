package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/score-forge/internal/logging"
)

const (
	taskTypeProcess = "eop:process"
	queueName       = "eop"
)

// TaskPayload は楽譜処理タスクのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// JobRunner は ID でジョブを処理します（*Manager が満たします）。
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// QueueDispatcher は Asynq（Redis）経由でジョブを処理します。
// ジョブ本体はメモリ上の Store にあるため、ワーカーは同じプロセス内で動かします。
type QueueDispatcher struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	runner JobRunner
	logger *zap.Logger
}

// QueueOptions は QueueDispatcher の設定です。
type QueueOptions struct {
	RedisURL    string
	Concurrency int
}

// NewQueueDispatcher は Asynq クライアントとサーバーを初期化します。
func NewQueueDispatcher(opts QueueOptions, runner JobRunner, logger *zap.Logger) (*QueueDispatcher, error) {
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	redisOpt, err := asynq.ParseRedisURI(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	d := &QueueDispatcher{
		client: asynq.NewClient(redisOpt),
		server: asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueName: 1,
			},
		}),
		mux:    asynq.NewServeMux(),
		runner: runner,
		logger: logging.Component(logger, "queue-dispatcher"),
	}
	d.mux.HandleFunc(taskTypeProcess, d.handleProcessTask)
	return d, nil
}

// Start は Asynq サーバーをバックグラウンドで起動します。
func (d *QueueDispatcher) Start() {
	go func() {
		if err := d.server.Run(d.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			d.logger.Error("asynq server stopped with error", zap.Error(err))
		}
	}()
}

// Dispatch はジョブをキューに投入します。
// 同じジョブ・同じ試行回数のタスクがすでにあれば何もしません。
func (d *QueueDispatcher) Dispatch(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	task, err := newProcessTask(job.ID)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.TaskID(taskID(job)),
		asynq.MaxRetry(0),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		d.logger.Debug("task already enqueued", zap.String("job_id", job.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	d.logger.Info("job enqueued", zap.String("job_id", job.ID), zap.String("task_id", info.ID))
	return nil
}

// Shutdown はサーバーとクライアントを閉じます。
func (d *QueueDispatcher) Shutdown(ctx context.Context) error {
	d.server.Shutdown()
	return d.client.Close()
}

func (d *QueueDispatcher) handleProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}

	if err := d.runner.Run(ctx, payload.JobID); err != nil {
		// 失敗はジョブ側に記録済みのため、タスクとしては完了扱いにする
		if errors.Is(err, ErrJobNotFound) {
			d.logger.Warn("job expired before processing", zap.String("job_id", payload.JobID))
			return nil
		}
		d.logger.Error("job processing failed", zap.String("job_id", payload.JobID), zap.Error(err))
		return nil
	}
	return nil
}

func newProcessTask(jobID string) (*asynq.Task, error) {
	body, err := json.Marshal(TaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskTypeProcess, body), nil
}

func taskID(job *Job) string {
	return fmt.Sprintf("eop:%s:%d", job.ID, job.Attempt())
}
