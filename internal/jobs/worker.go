package jobs

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/score-forge/internal/logging"
)

// Dispatcher はジョブ処理をどこで実行するかを抽象化します。
type Dispatcher interface {
	// Dispatch はジョブの処理を開始します。処理の完了は待ちません。
	Dispatch(ctx context.Context, job *Job) error
	// Shutdown は新規受付を止め、実行中の処理の終了を待ちます。
	Shutdown(ctx context.Context) error
}

// RunFunc は1ジョブを最後まで処理する関数です。
type RunFunc func(ctx context.Context, job *Job) error

// ErrDispatcherClosed は Shutdown 後に Dispatch された場合に返されます。
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// LocalDispatcher はプロセス内のゴルーチンでジョブを処理します。
// 同じジョブへの同時 Dispatch は1回の実行にまとめられます。
type LocalDispatcher struct {
	run    RunFunc
	group  singleflight.Group
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	logger *zap.Logger
}

// NewLocalDispatcher は LocalDispatcher を生成します。
func NewLocalDispatcher(run RunFunc, logger *zap.Logger) *LocalDispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		run:    run,
		base:   base,
		cancel: cancel,
		logger: logging.Component(logger, "local-dispatcher"),
	}
}

// Dispatch はジョブをバックグラウンドで処理します。
// リクエストの context ではなく Dispatcher 自身の context で実行します。
func (d *LocalDispatcher) Dispatch(_ context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	ch := d.group.DoChan(job.ID, func() (interface{}, error) {
		return nil, d.run(d.base, job)
	})
	go func() {
		defer d.wg.Done()
		res := <-ch
		if res.Err != nil {
			d.logger.Debug("job run returned error", zap.String("job_id", job.ID), zap.Error(res.Err))
		}
	}()
	return nil
}

// Wait は現在実行中の処理がすべて終わるまで待ちます。
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown は実行中の処理をキャンセルし、終了を待ちます。
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
