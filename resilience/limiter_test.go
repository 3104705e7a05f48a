package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// blocker returns a task that signals started and then waits for release.
func blocker(started chan<- string, release <-chan struct{}, id string) Task[string] {
	return func(ctx context.Context) (string, error) {
		if started != nil {
			started <- id
		}
		<-release
		return id, nil
	}
}

// recorder returns a task that appends id to the shared order slice.
func recorder(mu *sync.Mutex, order *[]string, id string) Task[string] {
	return func(ctx context.Context) (string, error) {
		mu.Lock()
		*order = append(*order, id)
		mu.Unlock()
		return id, nil
	}
}

func mustLimiter(t *testing.T, config LimiterConfig) *Limiter {
	t.Helper()
	l, err := NewLimiter(config)
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	return l
}

func waitStarted(t *testing.T, started <-chan string) string {
	t.Helper()
	select {
	case id := <-started:
		return id
	case <-time.After(time.Second):
		t.Fatal("task did not start")
		return ""
	}
}

func TestNewLimiter(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Name: "jobs"})

	state := l.State()
	if state.Limit != DefaultConcurrency {
		t.Errorf("Limit = %d, want %d", state.Limit, DefaultConcurrency)
	}
	if state.Active != 0 || state.Pending != 0 || state.Processed != 0 {
		t.Errorf("State() = %+v, want empty", state)
	}
	if l.Name() != "jobs" {
		t.Errorf("Name() = %q, want jobs", l.Name())
	}
}

func TestNewLimiter_InvalidConcurrency(t *testing.T) {
	_, err := NewLimiter(LimiterConfig{Concurrency: -1})

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *ConfigError", err)
	}
	if ce.Field != "Concurrency" {
		t.Errorf("Field = %q, want Concurrency", ce.Field)
	}
}

func TestLimiter_BoundsConcurrency(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 2})

	start := time.Now()
	futures := make([]*Future[int], 5)
	for i := range futures {
		f, err := Submit(context.Background(), l, func(ctx context.Context) (int, error) {
			time.Sleep(10 * time.Millisecond)
			return i, nil
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		futures[i] = f
	}

	for i, f := range futures {
		got, err := f.Wait()
		if err != nil {
			t.Errorf("task %d error = %v", i, err)
		}
		if got != i {
			t.Errorf("task %d = %d, want %d", i, got, i)
		}
	}
	elapsed := time.Since(start)

	if elapsed < 25*time.Millisecond {
		t.Errorf("elapsed = %v, want about 30ms with limit 2", elapsed)
	}
	state := l.State()
	if state.Processed != 5 {
		t.Errorf("Processed = %d, want 5", state.Processed)
	}
	if state.MaxActive != 2 {
		t.Errorf("MaxActive = %d, want 2", state.MaxActive)
	}
	if state.Active != 0 {
		t.Errorf("Active = %d, want 0", state.Active)
	}
}

func TestLimiter_Accounting(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})
	started := make(chan string, 1)
	release := make(chan struct{})

	first, _ := Submit(context.Background(), l, blocker(started, release, "first"), WithID("first"))
	waitStarted(t, started)

	for _, id := range []string{"a", "b", "c"} {
		if _, err := Submit(context.Background(), l, blocker(nil, release, id), WithID(id)); err != nil {
			t.Fatalf("Submit(%s) error = %v", id, err)
		}
	}

	state := l.State()
	if state.Active != 1 {
		t.Errorf("Active = %d, want 1", state.Active)
	}
	if state.Pending != 3 {
		t.Errorf("Pending = %d, want 3", state.Pending)
	}
	if state.Active+state.Pending != 4 {
		t.Errorf("Active+Pending = %d, want 4", state.Active+state.Pending)
	}

	close(release)
	if _, err := first.Wait(); err != nil {
		t.Fatalf("first.Wait() error = %v", err)
	}
}

func TestLimiter_PriorityOrder(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})
	started := make(chan string, 1)
	release := make(chan struct{})

	var mu sync.Mutex
	var order []string

	gate, _ := Submit(context.Background(), l, blocker(started, release, "gate"))
	waitStarted(t, started)

	submissions := []struct {
		id       string
		priority int
	}{
		{"low-1", 1},
		{"mid-1", 5},
		{"high-1", 9},
		{"mid-2", 5},
		{"low-2", 1},
		{"high-2", 9},
	}
	futures := make([]*Future[string], 0, len(submissions))
	for _, s := range submissions {
		f, err := Submit(context.Background(), l, recorder(&mu, &order, s.id), WithID(s.id), WithPriority(s.priority))
		if err != nil {
			t.Fatalf("Submit(%s) error = %v", s.id, err)
		}
		futures = append(futures, f)
	}

	want := []string{"high-1", "high-2", "mid-1", "mid-2", "low-1", "low-2"}
	queued := l.State().QueuedIDs
	for i := range want {
		if queued[i] != want[i] {
			t.Errorf("QueuedIDs[%d] = %s, want %s", i, queued[i], want[i])
		}
	}

	close(release)
	_, _ = gate.Wait()
	for _, f := range futures {
		_, _ = f.Wait()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("ran %d tasks, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestLimiter_InvalidPriority(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})

	for _, p := range []int{-1, 11} {
		f, err := Submit(context.Background(), l, recorder(&sync.Mutex{}, new([]string), "x"), WithPriority(p))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("priority %d: error = %v, want ErrInvalidConfig", p, err)
		}
		if f != nil {
			t.Errorf("priority %d: future should be nil", p)
		}
	}
	if state := l.State(); state.Active != 0 || state.Pending != 0 {
		t.Errorf("State() = %+v, want nothing scheduled", state)
	}
}

func TestLimiter_ClearQueue(t *testing.T) {
	var cancelled []string
	var mu sync.Mutex
	l := mustLimiter(t, LimiterConfig{
		Concurrency: 1,
		OnCancel: func(id string, err error) {
			mu.Lock()
			cancelled = append(cancelled, id)
			mu.Unlock()
		},
	})
	started := make(chan string, 1)
	release := make(chan struct{})

	running, _ := Submit(context.Background(), l, blocker(started, release, "running"))
	waitStarted(t, started)

	var queued []*Future[string]
	for _, id := range []string{"a", "b", "c"} {
		f, _ := Submit(context.Background(), l, blocker(nil, release, id), WithID(id))
		queued = append(queued, f)
	}

	if n := l.ClearQueue(); n != 3 {
		t.Errorf("ClearQueue() = %d, want 3", n)
	}

	for i, f := range queued {
		_, err := f.Wait()
		var qe *QueueClearedError
		if !errors.As(err, &qe) {
			t.Errorf("queued[%d] error = %v, want *QueueClearedError", i, err)
		}
	}

	state := l.State()
	if state.Active != 1 {
		t.Errorf("Active = %d, want 1", state.Active)
	}
	if state.Pending != 0 {
		t.Errorf("Pending = %d, want 0", state.Pending)
	}
	if state.Cleared != 3 {
		t.Errorf("Cleared = %d, want 3", state.Cleared)
	}

	close(release)
	if got, err := running.Wait(); err != nil || got != "running" {
		t.Errorf("running.Wait() = %q, %v, want running, nil", got, err)
	}
	if l.State().Processed != 1 {
		t.Errorf("Processed = %d, want 1", l.State().Processed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(cancelled) != 3 {
		t.Errorf("OnCancel calls = %d, want 3", len(cancelled))
	}
}

func TestLimiter_CancelWhileQueued(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})
	started := make(chan string, 1)
	release := make(chan struct{})
	defer close(release)

	_, _ = Submit(context.Background(), l, blocker(started, release, "running"))
	waitStarted(t, started)

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	f, _ := Submit(ctx, l, func(ctx context.Context) (int, error) {
		ran = true
		return 1, nil
	}, WithID("victim"))

	cancel()
	_, err := f.Wait()

	if !IsAbort(err) {
		t.Fatalf("error = %v, want AbortError", err)
	}
	if ran {
		t.Error("cancelled task should not run")
	}
	state := l.State()
	if state.Pending != 0 {
		t.Errorf("Pending = %d, want 0", state.Pending)
	}
	if state.Cancelled != 1 {
		t.Errorf("Cancelled = %d, want 1", state.Cancelled)
	}
}

func TestLimiter_DuplicateIDCancelledAtAdmission(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})
	started := make(chan string, 1)
	release := make(chan struct{})

	running, _ := Submit(context.Background(), l, blocker(started, release, "running"))
	waitStarted(t, started)

	ctx, cancel := context.WithCancel(context.Background())
	older, _ := Submit(ctx, l, func(ctx context.Context) (int, error) {
		t.Error("cancelled task should not run")
		return 0, nil
	}, WithID("dup"))
	newer, _ := Submit(context.Background(), l, func(ctx context.Context) (int, error) {
		return 2, nil
	}, WithID("dup"))

	cancel()
	if older.Settled() {
		t.Error("older task settled before reaching a free slot")
	}

	close(release)
	running.Wait()
	if _, err := older.Wait(); !IsAbort(err) {
		t.Errorf("older error = %v, want AbortError", err)
	}
	if got, err := newer.Wait(); err != nil || got != 2 {
		t.Errorf("newer = (%d, %v), want (2, nil)", got, err)
	}
}

func TestLimiter_StateCountsUnsettled(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})

	for i := 0; i < 200; i++ {
		f, err := Submit(context.Background(), l, func(ctx context.Context) (int, error) {
			return i, nil
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		for {
			s := l.State()
			if s.Active+s.Pending > 0 {
				continue
			}
			if !f.Settled() {
				t.Fatalf("iteration %d: State shows no work but the future is unsettled", i)
			}
			break
		}
	}

	release := make(chan struct{})
	defer close(release)
	_, _ = Submit(context.Background(), l, blocker(nil, release, "running"))
	ctx, cancel := context.WithCancel(context.Background())
	queued, _ := Submit(ctx, l, func(ctx context.Context) (int, error) { return 0, nil })
	cancel()
	for l.State().Pending > 0 {
	}
	if !queued.Settled() {
		t.Error("queued task left the queue without settling")
	}
}

func TestLimiter_SubmitCancelledContext(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})

	ctx, cancel := context.WithCancelCause(context.Background())
	shutdown := errors.New("shutdown")
	cancel(shutdown)

	_, err := Schedule(ctx, l, func(ctx context.Context) (int, error) {
		t.Error("task should not run")
		return 0, nil
	})

	if !IsAbort(err) {
		t.Fatalf("error = %v, want AbortError", err)
	}
	if !errors.Is(err, shutdown) {
		t.Errorf("error = %v, want cause %v", err, shutdown)
	}
}

func TestLimiter_SetConcurrencyRaise(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})
	started := make(chan string, 3)
	release := make(chan struct{})
	defer close(release)

	_, _ = Submit(context.Background(), l, blocker(started, release, "a"))
	waitStarted(t, started)
	_, _ = Submit(context.Background(), l, blocker(started, release, "b"))
	_, _ = Submit(context.Background(), l, blocker(started, release, "c"))

	if err := l.SetConcurrency(3); err != nil {
		t.Fatalf("SetConcurrency() error = %v", err)
	}
	waitStarted(t, started)
	waitStarted(t, started)

	state := l.State()
	if state.Active != 3 || state.Pending != 0 {
		t.Errorf("State() = %+v, want Active 3 Pending 0", state)
	}
}

func TestLimiter_SetConcurrencyLower(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 3})
	started := make(chan string, 3)
	releases := []chan struct{}{make(chan struct{}), make(chan struct{}), make(chan struct{})}

	running := make([]*Future[string], 3)
	for i := range running {
		running[i], _ = Submit(context.Background(), l, blocker(started, releases[i], "r"))
		waitStarted(t, started)
	}

	if err := l.SetConcurrency(1); err != nil {
		t.Fatalf("SetConcurrency() error = %v", err)
	}
	if l.State().Active != 3 {
		t.Errorf("Active = %d, want 3 (running tasks are not interrupted)", l.State().Active)
	}

	next, _ := Submit(context.Background(), l, func(ctx context.Context) (string, error) {
		return "next", nil
	})

	close(releases[0])
	_, _ = running[0].Wait()
	close(releases[1])
	_, _ = running[1].Wait()

	state := l.State()
	if state.Active != 1 || state.Pending != 1 {
		t.Errorf("State() = %+v, want Active 1 Pending 1", state)
	}

	close(releases[2])
	if got, err := next.Wait(); err != nil || got != "next" {
		t.Errorf("next.Wait() = %q, %v, want next, nil", got, err)
	}
}

func TestLimiter_SetConcurrencyInvalid(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 2})

	for _, n := range []int{0, -3} {
		if err := l.SetConcurrency(n); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("SetConcurrency(%d) error = %v, want ErrInvalidConfig", n, err)
		}
	}
	if l.State().Limit != 2 {
		t.Errorf("Limit = %d, want 2", l.State().Limit)
	}
}

func TestLimiter_PanicReleasesSlot(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})

	_, err := Schedule(context.Background(), l, func(ctx context.Context) (int, error) {
		panic("boom")
	})

	if !errors.Is(err, ErrTaskPanicked) {
		t.Fatalf("error = %v, want ErrTaskPanicked", err)
	}
	state := l.State()
	if state.Active != 0 {
		t.Errorf("Active = %d, want 0", state.Active)
	}
	if state.Processed != 1 {
		t.Errorf("Processed = %d, want 1", state.Processed)
	}

	got, err := Schedule(context.Background(), l, func(ctx context.Context) (int, error) {
		return 2, nil
	})
	if err != nil || got != 2 {
		t.Errorf("Schedule() after panic = %d, %v, want 2, nil", got, err)
	}
}

func TestLimiter_ErrorPropagates(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})
	taskErr := errors.New("task failed")

	err := l.Execute(context.Background(), func(ctx context.Context) error {
		return taskErr
	})

	if err != taskErr {
		t.Errorf("Execute() error = %v, want %v", err, taskErr)
	}
	if l.State().Processed != 1 {
		t.Errorf("Processed = %d, want 1", l.State().Processed)
	}
}

func TestLimiter_Hooks(t *testing.T) {
	admitted := make(chan string, 1)
	settled := make(chan error, 1)
	l := mustLimiter(t, LimiterConfig{
		Concurrency: 1,
		OnAdmit:     func(id string, waited time.Duration) { admitted <- id },
		OnSettle:    func(id string, elapsed time.Duration, err error) { settled <- err },
	})
	taskErr := errors.New("task failed")

	_, _ = Schedule(context.Background(), l, func(ctx context.Context) (int, error) {
		return 0, taskErr
	}, WithID("job-1"))

	select {
	case id := <-admitted:
		if id != "job-1" {
			t.Errorf("OnAdmit id = %q, want job-1", id)
		}
	case <-time.After(time.Second):
		t.Fatal("OnAdmit not called")
	}
	select {
	case err := <-settled:
		if err != taskErr {
			t.Errorf("OnSettle err = %v, want %v", err, taskErr)
		}
	case <-time.After(time.Second):
		t.Fatal("OnSettle not called")
	}
}

func TestLimiter_GeneratedIDs(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})
	started := make(chan string, 1)
	release := make(chan struct{})
	defer close(release)

	_, _ = Submit(context.Background(), l, blocker(started, release, "gate"))
	waitStarted(t, started)
	_, _ = Submit(context.Background(), l, blocker(nil, release, "x"))
	_, _ = Submit(context.Background(), l, blocker(nil, release, "y"))

	ids := l.State().QueuedIDs
	if len(ids) != 2 {
		t.Fatalf("len(QueuedIDs) = %d, want 2", len(ids))
	}
	if ids[0] == "" || ids[0] == ids[1] {
		t.Errorf("QueuedIDs = %v, want two distinct generated ids", ids)
	}
}

func TestFuture_Settled(t *testing.T) {
	l := mustLimiter(t, LimiterConfig{Concurrency: 1})
	release := make(chan struct{})

	f, _ := Submit(context.Background(), l, blocker(nil, release, "x"))
	if f.Settled() {
		t.Error("Settled() = true before the task finished")
	}

	close(release)
	<-f.Done()
	if !f.Settled() {
		t.Error("Settled() = false after Done was closed")
	}
	if got, _ := f.Wait(); got != "x" {
		t.Errorf("Wait() = %q, want x", got)
	}
}
