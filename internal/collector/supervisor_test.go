package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campus-carbon/carbon-portal/internal/domain"
)

type fakeTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      *sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return true
}

func (f *fakeTimers) after(d time.Duration, fn func()) timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{mu: &f.mu}
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delays)
}

func (f *fakeTimers) delay(i int) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delays[i]
}

func (f *fakeTimers) stopped(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[i].stopped
}

func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	fn := f.fns[i]
	f.mu.Unlock()
	fn()
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []int
}

func (n *recordingNotifier) NotifyCollectionFailure(_ context.Context, _ error, consecutive int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, consecutive)
	return nil
}

func (n *recordingNotifier) snapshot() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.calls...)
}

func waitForRun(t *testing.T, s *Supervisor) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Status().LastRunAt != nil }, 5*time.Second, 10*time.Millisecond)
}

func TestSupervisor_ProductionFailureSchedulesOneRetry(t *testing.T) {
	repos := newRepos(t)
	up := &stubSource{err: errors.New("API error 500")}
	timers := &fakeTimers{}
	notifier := &recordingNotifier{}
	s := NewSupervisor(SupervisorOptions{
		Runner:     New(Options{Repos: repos, Upstream: up, Now: fixedNow}),
		Notifier:   notifier,
		RetryDelay: DefaultRetryDelay,
		MaxRetries: DefaultMaxRetries,
		Production: true,
		AfterFunc:  timers.after,
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	waitForRun(t, s)

	logs, err := repos.RecentCollectionLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, domain.CollectionError, logs[0].Status)

	require.Equal(t, 1, timers.count())
	require.Equal(t, 5*time.Minute, timers.delay(0))

	st := s.Status()
	require.True(t, st.Running)
	require.True(t, st.RetryPending)
	require.NotNil(t, st.NextRetryAt)
	require.Equal(t, 1, st.ConsecutiveFailures)
	require.Len(t, st.Jobs, 3)
	require.Eventually(t, func() bool { return len(notifier.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []int{1}, notifier.snapshot())

	// a second failure while the retry is pending must not add another timer
	_, err = s.RunNow(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, timers.count())
	require.Equal(t, 2, s.Status().ConsecutiveFailures)
}

func TestSupervisor_RetryChainIsCapped(t *testing.T) {
	repos := newRepos(t)
	up := &stubSource{err: errors.New("down")}
	timers := &fakeTimers{}
	s := NewSupervisor(SupervisorOptions{
		Runner:     New(Options{Repos: repos, Upstream: up, Now: fixedNow}),
		MaxRetries: 3,
		AfterFunc:  timers.after,
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	waitForRun(t, s)

	timers.fire(0)
	timers.fire(1)
	require.Equal(t, 3, s.Status().ConsecutiveFailures)
	require.Equal(t, 2, timers.count())
	require.False(t, s.Status().RetryPending)
}

func TestSupervisor_SuccessResetsFailures(t *testing.T) {
	repos := newRepos(t)
	up := &stubSource{err: errors.New("down")}
	timers := &fakeTimers{}
	s := NewSupervisor(SupervisorOptions{
		Runner:    New(Options{Repos: repos, Upstream: up, Now: fixedNow}),
		AfterFunc: timers.after,
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	waitForRun(t, s)

	up.mu.Lock()
	up.err = nil
	up.buildings = []domain.BuildingReading{{Name: "도서관", Electricity: 1}}
	up.mu.Unlock()

	timers.fire(0)
	st := s.Status()
	require.Zero(t, st.ConsecutiveFailures)
	require.NotNil(t, st.LastSuccessAt)
	require.Empty(t, st.LastError)
	require.False(t, st.RetryPending)
}

func TestSupervisor_StartTwiceAndStop(t *testing.T) {
	repos := newRepos(t)
	up := &stubSource{buildings: []domain.BuildingReading{{Name: "공학관"}}}
	timers := &fakeTimers{}
	s := NewSupervisor(SupervisorOptions{
		Runner:    New(Options{Repos: repos, Upstream: up, Now: fixedNow}),
		AfterFunc: timers.after,
	})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	waitForRun(t, s)
	require.Equal(t, 1, up.callCount())

	s.Stop()
	s.Stop()
	st := s.Status()
	require.False(t, st.Running)
	require.Empty(t, st.Jobs)
}

func TestSupervisor_StopCancelsPendingRetry(t *testing.T) {
	repos := newRepos(t)
	up := &stubSource{err: errors.New("down")}
	timers := &fakeTimers{}
	s := NewSupervisor(SupervisorOptions{
		Runner:    New(Options{Repos: repos, Upstream: up, Now: fixedNow}),
		AfterFunc: timers.after,
	})

	require.NoError(t, s.Start(context.Background()))
	waitForRun(t, s)
	require.Equal(t, 1, timers.count())

	s.Stop()
	require.True(t, timers.stopped(0))
	require.False(t, s.Status().RetryPending)

	// a late fire of the cancelled timer is ignored
	timers.fire(0)
	require.Equal(t, 1, s.Status().ConsecutiveFailures)
}

func TestSupervisor_ManualFailureWhileStoppedSchedulesRetry(t *testing.T) {
	repos := newRepos(t)
	up := &stubSource{err: errors.New("down")}
	timers := &fakeTimers{}
	s := NewSupervisor(SupervisorOptions{
		Runner:    New(Options{Repos: repos, Upstream: up, Now: fixedNow}),
		AfterFunc: timers.after,
	})

	_, err := s.RunNow(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
	require.Equal(t, 1, timers.count())
	require.True(t, s.Status().RetryPending)

	timers.fire(0)
	require.Equal(t, 2, up.callCount())
	require.Equal(t, 2, timers.count())

	s.Stop()
	require.True(t, timers.stopped(1))
	require.False(t, s.Status().RetryPending)
}

func TestSupervisor_CancelledRunDoesNotRetry(t *testing.T) {
	repos := newRepos(t)
	timers := &fakeTimers{}
	s := NewSupervisor(SupervisorOptions{
		Runner:    New(Options{Repos: repos, Upstream: &stubSource{err: errors.New("down")}, Now: fixedNow}),
		AfterFunc: timers.after,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.RunNow(ctx)
	require.Error(t, err)
	require.Zero(t, timers.count())
}
