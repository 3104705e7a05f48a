package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/taskguard/queue"
)

// DefaultConcurrency is the limit used when LimiterConfig.Concurrency is zero.
const DefaultConcurrency = 10

// LimiterConfig configures a Limiter.
type LimiterConfig struct {
	// Name labels the limiter in telemetry.
	Name string

	// Concurrency is the maximum number of tasks running at once.
	// Default: 10
	Concurrency int

	// OnAdmit is called when a task starts, with the time it spent queued.
	OnAdmit func(id string, waited time.Duration)

	// OnSettle is called after a started task finishes and its slot is freed.
	OnSettle func(id string, elapsed time.Duration, err error)

	// OnCancel is called when a task is rejected without running, either
	// because its context ended or the queue was cleared.
	OnCancel func(id string, err error)
}

// Validate checks the configuration.
func (c LimiterConfig) Validate() error {
	if c.Concurrency < 0 {
		return &ConfigError{Field: "Concurrency", Value: c.Concurrency, Reason: "must be positive"}
	}
	return nil
}

// ConcurrencyState is a point-in-time view of a Limiter.
type ConcurrencyState struct {
	// Limit is the current maximum of concurrently running tasks.
	Limit int

	// Active is the number of running tasks.
	Active int

	// Pending is the number of queued tasks.
	Pending int

	// Processed counts tasks that ran and settled, successfully or not.
	Processed uint64

	// QueuedIDs lists queued task ids in the order they will start.
	QueuedIDs []string

	// MaxActive is the highest Active value observed.
	MaxActive int

	// Cancelled counts queued tasks whose context ended before they started.
	Cancelled uint64

	// Cleared counts queued tasks rejected by ClearQueue.
	Cleared uint64
}

// ScheduleOption configures one submission.
type ScheduleOption func(*scheduleOptions)

type scheduleOptions struct {
	priority int
	id       string
}

// WithPriority sets the task priority, 0 through 10. Higher runs first.
// Default: 5
func WithPriority(p int) ScheduleOption {
	return func(o *scheduleOptions) { o.priority = p }
}

// WithID sets the task id. Ids must be unique among queued tasks: a queued
// task whose id was reused by a later submission is not removed when its
// context ends, and is only rejected once it reaches a free slot.
// Default: a random UUID.
func WithID(id string) ScheduleOption {
	return func(o *scheduleOptions) { o.id = id }
}

func resolveScheduleOptions(opts []ScheduleOption) (scheduleOptions, error) {
	o := scheduleOptions{priority: queue.DefaultPriority}
	for _, opt := range opts {
		opt(&o)
	}
	if o.priority < queue.MinPriority || o.priority > queue.MaxPriority {
		return o, &ConfigError{Field: "Priority", Value: o.priority, Reason: "must be between 0 and 10"}
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	return o, nil
}

// pending is a submitted task that has not settled. The limiter holds it by
// value in its queue; the continuations close over the caller's Future and
// never point back at the limiter.
type pending struct {
	id        string
	ctx       context.Context
	submitted time.Time

	// run executes the task and returns the continuation that settles the
	// caller's result.
	run func() (settle func(), err error)

	// reject settles the caller's result with err without running the task.
	// It only closes the Future, so the limiter calls it under its lock.
	reject func(err error)

	// stop detaches the cancellation watcher.
	stop func() bool
}

type rejection struct {
	p   *pending
	err error
}

// Limiter runs at most Limit tasks at once and queues the rest by priority.
//
// Admission and release happen under one lock: a slot that frees up is
// handed to the highest-priority queued task before the lock is dropped, so
// no slot sits idle while work is waiting.
type Limiter struct {
	config LimiterConfig

	mu        sync.Mutex
	limit     int
	active    int
	maxActive int
	processed uint64
	cancelled uint64
	cleared   uint64
	queue     *queue.PriorityQueue[*pending]
}

// NewLimiter creates a new limiter.
func NewLimiter(config LimiterConfig) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Apply defaults
	if config.Concurrency == 0 {
		config.Concurrency = DefaultConcurrency
	}

	return &Limiter{
		config: config,
		limit:  config.Concurrency,
		queue:  queue.New[*pending](),
	}, nil
}

// Submit hands task to the limiter and returns its pending result without
// blocking. The task starts at once if a slot is free and is queued otherwise.
//
// ctx is the cancellation signal: if it ends while the task is queued, the
// task is removed and its result is an AbortError. Once running, the task only
// sees ctx; the limiter never interrupts it.
//
// An invalid option is returned as a ConfigError and nothing is scheduled.
func Submit[T any](ctx context.Context, l *Limiter, task Task[T], opts ...ScheduleOption) (*Future[T], error) {
	o, err := resolveScheduleOptions(opts)
	if err != nil {
		return nil, err
	}

	f := newFuture[T]()
	p := &pending{
		id:        o.id,
		ctx:       ctx,
		submitted: time.Now(),
		run: func() (func(), error) {
			v, err := runTask(ctx, task)
			return func() { f.settle(v, err) }, err
		},
		reject: func(err error) {
			var zero T
			f.settle(zero, err)
		},
	}

	l.enqueue(p, o.priority)
	return f, nil
}

// Schedule submits task and waits for its result.
func Schedule[T any](ctx context.Context, l *Limiter, task Task[T], opts ...ScheduleOption) (T, error) {
	f, err := Submit(ctx, l, task, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return f.Wait()
}

// Execute runs the operation within the limiter.
func (l *Limiter) Execute(ctx context.Context, op func(context.Context) error, opts ...ScheduleOption) error {
	_, err := Schedule(ctx, l, Op(op), opts...)
	return err
}

func (l *Limiter) enqueue(p *pending, priority int) {
	if p.ctx.Err() != nil {
		err := abortError(p.ctx)
		l.mu.Lock()
		l.cancelled++
		p.reject(err)
		l.mu.Unlock()
		l.notifyCancelled([]rejection{{p: p, err: err}})
		return
	}

	l.mu.Lock()
	if l.active < l.limit {
		l.activateLocked()
		l.mu.Unlock()
		l.start(p)
		return
	}
	l.queue.Enqueue(p.id, priority, p)
	p.stop = context.AfterFunc(p.ctx, func() { l.cancelQueued(p) })
	l.mu.Unlock()
}

// cancelQueued pulls p out of the queue after its context ended. It does
// nothing if p already left the queue.
func (l *Limiter) cancelQueued(p *pending) {
	l.mu.Lock()
	it, ok := l.queue.FindByID(p.id)
	if !ok || it.Value != p {
		l.mu.Unlock()
		return
	}
	l.queue.RemoveByID(p.id)
	l.cancelled++
	err := abortError(p.ctx)
	p.reject(err)
	l.mu.Unlock()

	l.notifyCancelled([]rejection{{p: p, err: err}})
}

func (l *Limiter) activateLocked() {
	l.active++
	if l.active > l.maxActive {
		l.maxActive = l.active
	}
}

// admitLocked fills free slots from the queue. Items whose context already
// ended are rejected instead of started; their results are settled here and
// returned only for the OnCancel hook.
func (l *Limiter) admitLocked() (start []*pending, rejected []rejection) {
	for l.active < l.limit {
		it, ok := l.queue.DequeueHighest()
		if !ok {
			break
		}
		p := it.Value
		if p.stop != nil {
			p.stop()
		}
		if p.ctx.Err() != nil {
			l.cancelled++
			err := abortError(p.ctx)
			p.reject(err)
			rejected = append(rejected, rejection{p: p, err: err})
			continue
		}
		l.activateLocked()
		start = append(start, p)
	}
	return start, rejected
}

// start runs p on its own goroutine. The caller has already counted it as
// active.
func (l *Limiter) start(p *pending) {
	go func() {
		if l.config.OnAdmit != nil {
			l.config.OnAdmit(p.id, time.Since(p.submitted))
		}
		began := time.Now()
		settle, err := p.run()
		l.release(p, settle, time.Since(began), err)
	}()
}

// release frees p's slot, settles p's result and admits waiting work in one
// critical section, so State never shows a task that is neither counted nor
// settled. Hooks run after the lock is dropped.
func (l *Limiter) release(p *pending, settle func(), elapsed time.Duration, err error) {
	l.mu.Lock()
	l.active--
	l.processed++
	settle()
	start, rejected := l.admitLocked()
	l.mu.Unlock()

	if l.config.OnSettle != nil {
		l.config.OnSettle(p.id, elapsed, err)
	}
	l.dispatch(start, rejected)
}

func (l *Limiter) dispatch(start []*pending, rejected []rejection) {
	l.notifyCancelled(rejected)
	for _, p := range start {
		l.start(p)
	}
}

// notifyCancelled reports already-settled rejections to OnCancel.
func (l *Limiter) notifyCancelled(rejected []rejection) {
	if l.config.OnCancel == nil {
		return
	}
	for _, r := range rejected {
		l.config.OnCancel(r.p.id, r.err)
	}
}

// SetConcurrency changes the limit. Raising it starts queued tasks at once;
// lowering it never interrupts running tasks, it only delays admissions until
// enough of them finish.
func (l *Limiter) SetConcurrency(n int) error {
	if n <= 0 {
		return &ConfigError{Field: "Concurrency", Value: n, Reason: "must be positive"}
	}

	l.mu.Lock()
	l.limit = n
	start, rejected := l.admitLocked()
	l.mu.Unlock()

	l.dispatch(start, rejected)
	return nil
}

// ClearQueue rejects every queued task with a QueueClearedError and returns
// how many were removed. Running tasks are unaffected.
func (l *Limiter) ClearQueue() int {
	l.mu.Lock()
	items := l.queue.DrainAll()
	l.cleared += uint64(len(items))
	rejected := make([]rejection, 0, len(items))
	for _, it := range items {
		p := it.Value
		if p.stop != nil {
			p.stop()
		}
		err := &QueueClearedError{ID: p.id}
		p.reject(err)
		rejected = append(rejected, rejection{p: p, err: err})
	}
	l.mu.Unlock()

	l.notifyCancelled(rejected)
	return len(items)
}

// State returns a snapshot of the limiter.
func (l *Limiter) State() ConcurrencyState {
	l.mu.Lock()
	defer l.mu.Unlock()

	return ConcurrencyState{
		Limit:     l.limit,
		Active:    l.active,
		Pending:   l.queue.Len(),
		Processed: l.processed,
		QueuedIDs: l.queue.IDs(),
		MaxActive: l.maxActive,
		Cancelled: l.cancelled,
		Cleared:   l.cleared,
	}
}

// Name returns the configured name.
func (l *Limiter) Name() string {
	return l.config.Name
}

// Config returns the limiter configuration.
func (l *Limiter) Config() LimiterConfig {
	return l.config
}
