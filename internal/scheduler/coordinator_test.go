package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookscout/bookscout/internal/catalog"
	"github.com/bookscout/bookscout/internal/store/memory"
)

// fakeRunner counts stage calls and can block or fail on demand.
type fakeRunner struct {
	mu         sync.Mutex
	navCalls   int
	catCalls   int
	prodCalls  int
	prodLimits []int
	navErr     error
	navGate    chan struct{}
}

func (f *fakeRunner) ScrapeNavigation(_ context.Context) (catalog.StageResult, error) {
	f.mu.Lock()
	f.navCalls++
	gate := f.navGate
	err := f.navErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return catalog.StageResult{}, err
	}
	return catalog.StageResult{Success: true, Count: 2}, nil
}

func (f *fakeRunner) ScrapeCategories(_ context.Context, _ string) (catalog.StageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catCalls++
	return catalog.StageResult{Success: true, Count: 3}, nil
}

func (f *fakeRunner) ScrapeProducts(_ context.Context, _ string, limit int) (catalog.StageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prodCalls++
	f.prodLimits = append(f.prodLimits, limit)
	return catalog.StageResult{Success: true, Count: 5}, nil
}

func (f *fakeRunner) ScrapeProductDetails(_ context.Context, _ string) (catalog.DetailResult, error) {
	return catalog.DetailResult{Success: true}, nil
}

func (f *fakeRunner) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.navCalls, f.catCalls, f.prodCalls
}

func TestRunCompositeRunsStagesInOrder(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	st := memory.New()
	c := NewCoordinator(runner, st, nil)

	result, err := c.RunComposite(context.Background(), 50)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 10, result.Count)

	nav, cat, prod := runner.counts()
	require.Equal(t, 1, nav)
	require.Equal(t, 1, cat)
	require.Equal(t, 1, prod)
	require.Equal(t, []int{50}, runner.prodLimits)

	jobs, err := st.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, catalog.JobTypeComposite, jobs[0].Type)
	require.Equal(t, catalog.JobStatusCompleted, jobs[0].Status)
}

func TestRunCompositeDropsConcurrentTriggers(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{navGate: make(chan struct{})}
	c := NewCoordinator(runner, memory.New(), nil)

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.RunComposite(context.Background(), 50)
		firstDone <- err
	}()

	require.Eventually(t, c.Running, time.Second, time.Millisecond)

	_, err := c.RunComposite(context.Background(), 50)
	require.ErrorIs(t, err, ErrBusy)

	close(runner.navGate)
	require.NoError(t, <-firstDone)
	require.False(t, c.Running())

	nav, _, _ := runner.counts()
	require.Equal(t, 1, nav)
}

func TestRunCompositeReleasesGuardOnFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{navErr: errors.New("source unreachable")}
	st := memory.New()
	c := NewCoordinator(runner, st, nil)

	_, err := c.RunComposite(context.Background(), 50)
	require.Error(t, err)
	require.False(t, c.Running())

	jobs, err := st.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, catalog.JobStatusFailed, jobs[0].Status)
	require.NotEmpty(t, jobs[0].Error)

	// The guard is free again, so a retry proceeds.
	runner.mu.Lock()
	runner.navErr = nil
	runner.mu.Unlock()
	_, err = c.RunComposite(context.Background(), 50)
	require.NoError(t, err)
}

func TestRunCompositeStopsAfterFailedStage(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{navErr: errors.New("source unreachable")}
	c := NewCoordinator(runner, memory.New(), nil)

	_, err := c.RunComposite(context.Background(), 50)
	require.Error(t, err)

	_, cat, prod := runner.counts()
	require.Equal(t, 0, cat)
	require.Equal(t, 0, prod)
}
