package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/gutensearch/pkg/guten"
	"github.com/kadirpekel/gutensearch/pkg/logger"
)

func waitDone(t *testing.T, p *Pipeline) Status {
	t.Helper()
	require.Eventually(t, func() bool {
		return !p.Status().Running
	}, 5*time.Second, 5*time.Millisecond)
	return p.Status()
}

func TestExecuteRunsWholeRange(t *testing.T) {
	var mu sync.Mutex
	seen := map[guten.BookID]int{}

	p := New(func(_ context.Context, id guten.BookID) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		seen[id]++
		return true, nil
	}, logger.GetLogger())

	require.NoError(t, p.Execute(context.Background(), 1, 20, 4))
	status := waitDone(t, p)

	assert.Equal(t, 20, status.Total)
	assert.Equal(t, 20, status.Stored)
	assert.Zero(t, status.Failed)
	assert.NotNil(t, status.StartedAt)
	assert.NotNil(t, status.FinishedAt)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "book %d ran once", id)
	}
}

func TestExecuteCountsOutcomesSeparately(t *testing.T) {
	p := New(func(_ context.Context, id guten.BookID) (bool, error) {
		switch {
		case id%3 == 0:
			return false, errors.New("boom")
		case id%3 == 1:
			return true, nil
		default:
			return false, nil
		}
	}, logger.GetLogger())

	require.NoError(t, p.Execute(context.Background(), 1, 9, 2))
	status := waitDone(t, p)

	assert.Equal(t, 3, status.Stored)
	assert.Equal(t, 3, status.Skipped)
	assert.Equal(t, 3, status.Failed)
	assert.Len(t, status.Errors, 3)
}

func TestExecuteRejectsBadRangeAndOverlap(t *testing.T) {
	block := make(chan struct{})
	p := New(func(_ context.Context, _ guten.BookID) (bool, error) {
		<-block
		return true, nil
	}, logger.GetLogger())

	assert.Error(t, p.Execute(context.Background(), 0, 5, 1))
	assert.Error(t, p.Execute(context.Background(), 10, 5, 1))

	require.NoError(t, p.Execute(context.Background(), 1, 2, 1))
	assert.Error(t, p.Execute(context.Background(), 3, 4, 1), "concurrent run refused")

	close(block)
	waitDone(t, p)

	assert.NoError(t, p.Execute(context.Background(), 3, 4, 1), "next run allowed after finish")
	waitDone(t, p)
}

func TestStatusIsACopy(t *testing.T) {
	p := New(func(_ context.Context, _ guten.BookID) (bool, error) {
		return false, errors.New("x")
	}, logger.GetLogger())

	require.NoError(t, p.Execute(context.Background(), 1, 1, 1))
	status := waitDone(t, p)
	require.Len(t, status.Errors, 1)

	status.Errors[0] = "mutated"
	assert.NotEqual(t, "mutated", p.Status().Errors[0])
}
