package service

import (
	"context"
	"encoding/json"
	"fmt"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/pkg/logger"
	"smart_edu_backend/pkg/monitoring"
	"smart_edu_backend/pkg/tracing"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// JobHandler 执行一个任务，返回值序列化后写入 job.result
type JobHandler func(ctx context.Context, job *model.AIJob) (interface{}, error)

// JobRunner 固定数量的 worker 从队列中取任务执行，任务状态持久化在 AIJobStore，
// 调用方只能通过 request_id 轮询状态。
type JobRunner struct {
	store    AIJobStore
	handlers map[model.AIJobKind]JobHandler
	queue    chan string
	workers  int
	sweep    time.Duration

	mu       sync.Mutex
	inflight map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    Clock
}

func NewJobRunner(store AIJobStore, workers, queueSize int) *JobRunner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobRunner{
		store:    store,
		handlers: make(map[model.AIJobKind]JobHandler),
		queue:    make(chan string, queueSize),
		workers:  workers,
		sweep:    30 * time.Second,
		inflight: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
		now:      systemClock,
	}
}

func (r *JobRunner) Register(kind model.AIJobKind, h JobHandler) {
	r.handlers[kind] = h
}

// Start 启动 worker 和定期补偿扫描
func (r *JobRunner) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	r.wg.Add(1)
	go r.sweepLoop()
}

// Stop 停止接收新任务并等待执行中的任务返回
func (r *JobRunner) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Enqueue 持久化任务后放入队列。队列已满时任务保持 pending，由补偿扫描稍后入队。
func (r *JobRunner) Enqueue(ctx context.Context, job *model.AIJob) error {
	if _, ok := r.handlers[job.Kind]; !ok {
		return fmt.Errorf("no handler registered for job kind %q", job.Kind)
	}
	job.Status = model.AIJobPending
	if err := r.store.Create(ctx, job); err != nil {
		return err
	}
	r.dispatch(job.ID)
	return nil
}

// Recover 启动时把未完成的任务重新入队，processing 状态说明上次执行被中断
func (r *JobRunner) Recover(ctx context.Context) (int, error) {
	jobs, err := r.store.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range jobs {
		job := &jobs[i]
		if job.Status == model.AIJobProcessing {
			job.Status = model.AIJobPending
			if err := r.store.Update(ctx, job); err != nil {
				logger.Log.Error("Failed to reset interrupted job", zap.String("request_id", job.ID), zap.Error(err))
				continue
			}
		}
		if r.dispatch(job.ID) {
			n++
		}
	}
	return n, nil
}

func (r *JobRunner) dispatch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[id] {
		return false
	}
	select {
	case r.queue <- id:
		r.inflight[id] = true
		return true
	default:
		logger.Log.Warn("Job queue full, job stays pending", zap.String("request_id", id))
		return false
	}
}

func (r *JobRunner) done(id string) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

func (r *JobRunner) work() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case id := <-r.queue:
			r.process(id)
			r.done(id)
		}
	}
}

func (r *JobRunner) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Recover(r.ctx); err != nil && r.ctx.Err() == nil {
				logger.Log.Error("Job sweep failed", zap.Error(err))
			}
		}
	}
}

func (r *JobRunner) process(id string) {
	ctx := r.ctx
	job, err := r.store.Get(ctx, id)
	if err != nil {
		logger.Log.Error("Failed to load job", zap.String("request_id", id), zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		return
	}

	handler := r.handlers[job.Kind]
	started := r.now()
	job.Status = model.AIJobProcessing
	job.Attempts++
	job.StartedAt = &started
	if err := r.store.Update(ctx, job); err != nil {
		logger.Log.Error("Failed to mark job processing", zap.String("request_id", id), zap.Error(err))
		return
	}

	ctx, span := tracing.StartJobSpan(ctx, string(job.Kind), job.ID)
	result, err := r.run(ctx, handler, job)
	tracing.RecordError(span, err)
	span.End()

	// 进程退出导致的中断保持 processing，下次启动时由 Recover 重新执行
	if r.ctx.Err() != nil {
		return
	}

	finished := r.now()
	job.FinishedAt = &finished
	if err != nil {
		job.Status = model.AIJobError
		job.Error = err.Error()
	} else {
		job.Status = model.AIJobDone
		job.Error = ""
		if result != nil {
			b, merr := json.Marshal(result)
			if merr != nil {
				job.Status = model.AIJobError
				job.Error = merr.Error()
			} else {
				job.Result = datatypes.JSON(b)
			}
		}
	}

	if err := r.store.Update(context.Background(), job); err != nil {
		logger.Log.Error("Failed to save job result", zap.String("request_id", id), zap.Error(err))
	}

	monitoring.AIJobCounter.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	monitoring.AIJobDuration.WithLabelValues(string(job.Kind)).Observe(finished.Sub(started).Seconds())
	logger.Log.Info("AI job finished",
		zap.String("request_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("status", string(job.Status)),
		zap.Duration("elapsed", finished.Sub(started)),
		zap.String("error", job.Error))
}

func (r *JobRunner) run(ctx context.Context, handler JobHandler, job *model.AIJob) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Log.Error("AI job panicked", zap.String("request_id", job.ID), zap.Any("panic", p))
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return handler(ctx, job)
}
