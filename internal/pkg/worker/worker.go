package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task 后台任务，Run 返回错误时按退避时间重试
type Task struct {
	Name  string
	Run   func(ctx context.Context) error
	Retry int // 已重试次数
}

// Options 工作池参数
type Options struct {
	Workers     int
	QueueSize   int
	MaxRetry    int
	Backoff     time.Duration // 第 n 次重试前等待 n*Backoff
	TaskTimeout time.Duration
	// DeadLetter 任务最终失败时调用（重试耗尽或队列已满）
	DeadLetter func(task Task, err error)
}

type WorkerPool struct {
	taskQueue  chan Task
	retryQueue chan Task // 重试队列
	opts       Options
	log        *zap.Logger

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorkerPool(opts Options, log *zap.Logger) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 10 * time.Second
	}
	return &WorkerPool{
		taskQueue:  make(chan Task, opts.QueueSize),
		retryQueue: make(chan Task, opts.QueueSize/2+1),
		opts:       opts,
		log:        log.Named("worker"),
		quit:       make(chan struct{}),
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	// 启动重试处理协程
	p.wg.Add(1)
	go p.retryWorker()
	p.log.Info("Worker pool started", zap.Int("workers", p.opts.Workers), zap.Int("queue_size", p.opts.QueueSize))
}

// Submit 非阻塞入队，队列已满或已停止时返回 false
func (p *WorkerPool) Submit(task Task) bool {
	select {
	case <-p.quit:
		p.deadLetter(task, nil, "worker pool stopped")
		return false
	default:
	}

	select {
	case p.taskQueue <- task:
		return true
	default:
		p.deadLetter(task, nil, "queue full")
		return false
	}
}

// Stop 停止接收新任务，处理完已入队任务后返回；ctx 超时则直接返回
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.quit) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.taskQueue:
			p.handle(id, task)
		case <-p.quit:
			// 处理剩余任务，不再重试
			for {
				select {
				case task := <-p.taskQueue:
					if err := p.run(task); err != nil {
						p.deadLetter(task, err, "failed during shutdown")
					}
				default:
					return
				}
			}
		}
	}
}

func (p *WorkerPool) handle(id int, task Task) {
	err := p.run(task)
	if err == nil {
		return
	}

	p.log.Warn("Task failed",
		zap.Int("worker", id),
		zap.String("task", task.Name),
		zap.Int("attempt", task.Retry+1),
		zap.Error(err))

	// 如果未达到最大重试次数，加入重试队列
	if task.Retry >= p.opts.MaxRetry {
		p.deadLetter(task, err, "exceeded max retries")
		return
	}
	task.Retry++
	select {
	case p.retryQueue <- task:
	default:
		p.deadLetter(task, err, "retry queue full")
	}
}

// run 执行任务，panic 转为错误按失败重试
func (p *WorkerPool) run(task Task) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.TaskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}

func (p *WorkerPool) retryWorker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.retryQueue:
			// 延迟重试，避免立即重试
			timer := time.NewTimer(time.Duration(task.Retry) * p.opts.Backoff)
			select {
			case <-timer.C:
			case <-p.quit:
				timer.Stop()
				p.deadLetter(task, nil, "worker pool stopped before retry")
				p.drainRetries()
				return
			}

			// 重新加入主队列
			select {
			case p.taskQueue <- task:
			default:
				p.deadLetter(task, nil, "main queue full on retry")
			}
		case <-p.quit:
			p.drainRetries()
			return
		}
	}
}

func (p *WorkerPool) drainRetries() {
	for {
		select {
		case task := <-p.retryQueue:
			p.deadLetter(task, nil, "worker pool stopped before retry")
		default:
			return
		}
	}
}

func (p *WorkerPool) deadLetter(task Task, err error, reason string) {
	p.log.Error("Task dropped",
		zap.String("task", task.Name),
		zap.Int("retries", task.Retry),
		zap.String("reason", reason),
		zap.Error(err))
	if p.opts.DeadLetter != nil {
		p.opts.DeadLetter(task, err)
	}
}
