// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rovshanmuradov/walletwatch/internal/utils/metrics"
	pacer "go.uber.org/ratelimit"
	"go.uber.org/zap"
)

const (
	DefaultRatePerSecond = 13
	DefaultTaskTimeout   = 20 * time.Second
)

var (
	// ErrClosed возвращается задачам, которые не успели стартовать до остановки лимитера
	ErrClosed = errors.New("rate limiter closed")

	// ErrTaskTimeout оборачивает ошибку задачи, превысившей дедлайн
	ErrTaskTimeout = errors.New("task deadline exceeded")
)

// Config задаёт параметры лимитера.
type Config struct {
	RatePerSecond int
	TaskTimeout   time.Duration
}

// job – элемент очереди; run вызывается диспетчером ровно один раз.
type job struct {
	ctx    context.Context
	run    func(ctx context.Context)
	cancel func(err error)
}

// Limiter – FIFO-очередь с единственным диспетчером, стартующим не более N задач в секунду.
// Задачи выполняются последовательно, ошибка одной задачи не останавливает очередь.
type Limiter struct {
	pace    pacer.Limiter
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	queue  []job
	closed bool
	wakeup chan struct{}
	done   chan struct{}
}

// New создаёт лимитер и запускает диспетчер.
func New(cfg Config, logger *zap.Logger) *Limiter {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRatePerSecond
	}
	return newLimiter(pacer.New(cfg.RatePerSecond, pacer.WithoutSlack), cfg.TaskTimeout, logger)
}

// NewUnlimited создаёт лимитер без паузы между задачами. Порядок FIFO сохраняется.
func NewUnlimited(logger *zap.Logger) *Limiter {
	return newLimiter(pacer.NewUnlimited(), DefaultTaskTimeout, logger)
}

func newLimiter(p pacer.Limiter, timeout time.Duration, logger *zap.Logger) *Limiter {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	l := &Limiter{
		pace:    p,
		timeout: timeout,
		logger:  logger.Named("rate-limiter"),
		wakeup:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go l.dispatch()
	return l
}

// Pending возвращает количество задач, ожидающих запуска.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Close останавливает диспетчер. Ожидающие задачи завершаются с ErrClosed.
func (l *Limiter) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.signal()
	<-l.done
}

func (l *Limiter) enqueue(j job) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, j)
	depth := len(l.queue)
	l.mu.Unlock()

	metrics.SetQueueDepth(depth)
	l.signal()
	return nil
}

func (l *Limiter) signal() {
	select {
	case l.wakeup <- struct{}{}:
	default:
	}
}

// next снимает первую задачу из очереди. ok=false означает, что лимитер закрыт.
func (l *Limiter) next() (job, bool) {
	for {
		l.mu.Lock()
		if l.closed {
			pending := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, j := range pending {
				j.cancel(ErrClosed)
			}
			metrics.SetQueueDepth(0)
			return job{}, false
		}
		if len(l.queue) > 0 {
			j := l.queue[0]
			l.queue[0] = job{}
			l.queue = l.queue[1:]
			depth := len(l.queue)
			l.mu.Unlock()
			metrics.SetQueueDepth(depth)
			return j, true
		}
		l.mu.Unlock()
		<-l.wakeup
	}
}

func (l *Limiter) dispatch() {
	defer close(l.done)

	for {
		j, ok := l.next()
		if !ok {
			return
		}

		// Вызывающая сторона уже отказалась от результата, слот не тратим
		if err := j.ctx.Err(); err != nil {
			j.cancel(err)
			continue
		}

		l.pace.Take()
		l.execute(j)
	}
}

func (l *Limiter) execute(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, l.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Task panicked", zap.Any("panic", r))
			j.cancel(fmt.Errorf("task panicked: %v", r))
		}
	}()

	j.run(ctx)
}

// Future – результат задачи, поставленной в очередь лимитера.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done закрывается после завершения задачи.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await ждёт результата задачи или отмены ctx.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit ставит задачу в очередь лимитера. Задача получает контекст с дедлайном TaskTimeout.
func Submit[T any](ctx context.Context, l *Limiter, task func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	var zero T

	j := job{
		ctx: ctx,
		run: func(taskCtx context.Context) {
			value, err := task(taskCtx)
			if err != nil {
				if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
					err = fmt.Errorf("%w: %w", ErrTaskTimeout, err)
				}
				l.logger.Debug("Task failed", zap.Error(err))
			}
			f.resolve(value, err)
		},
		cancel: func(err error) {
			f.resolve(zero, err)
		},
	}

	if err := l.enqueue(j); err != nil {
		f.resolve(zero, err)
	}
	return f
}

// Do ставит задачу в очередь и ждёт её результата.
func Do[T any](ctx context.Context, l *Limiter, task func(ctx context.Context) (T, error)) (T, error) {
	return Submit(ctx, l, task).Await(ctx)
}
