package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, rc *RunContext) error { return nil }

func TestEngineRunsDependenciesBeforeDependents(t *testing.T) {
	dag := NewDag("order")
	var mu sync.Mutex
	var order []string
	record := func(name string) DagFunc {
		return func(ctx context.Context, rc *RunContext) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	dag.MustAdd("fetch", nil, record("fetch"))
	dag.MustAdd("parse", []string{"fetch"}, record("parse"))
	dag.MustAdd("store", []string{"parse"}, record("store"))

	rc := NewRunContext("text")
	engine := &Engine{MaxParallel: 4}
	require.NoError(t, engine.Execute(context.Background(), dag, rc))

	require.Equal(t, []string{"fetch", "parse", "store"}, order)
	for _, name := range order {
		outcome, ok := rc.Outcome(name)
		require.True(t, ok)
		assert.Equal(t, StatusOK, outcome.Status)
	}
}

func TestEngineDependencyFinishesBeforeDependentStarts(t *testing.T) {
	dag := NewDag("timing")
	dag.MustAdd("a", nil, func(ctx context.Context, rc *RunContext) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	dag.MustAdd("b", []string{"a"}, noop)

	rc := NewRunContext("text")
	engine := &Engine{MaxParallel: 4}
	require.NoError(t, engine.Execute(context.Background(), dag, rc))

	a, _ := rc.Outcome("a")
	b, _ := rc.Outcome("b")
	assert.False(t, b.StartedAt.Before(a.FinishedAt),
		"dependent started at %v before dependency finished at %v", b.StartedAt, a.FinishedAt)
}

func TestEngineFailureSkipsDependentsButNotSiblings(t *testing.T) {
	dag := NewDag("branches")
	dag.MustAdd("broken", nil, func(ctx context.Context, rc *RunContext) error {
		return errors.New("boom")
	})
	dag.MustAdd("downstream", []string{"broken"}, noop)
	dag.MustAdd("transitive", []string{"downstream"}, noop)
	dag.MustAdd("independent", nil, func(ctx context.Context, rc *RunContext) error {
		rc.SetOutput("independent_ran", true)
		return nil
	})

	rc := NewRunContext("text")
	engine := &Engine{MaxParallel: 4}
	require.NoError(t, engine.Execute(context.Background(), dag, rc))

	broken, _ := rc.Outcome("broken")
	assert.Equal(t, StatusFailed, broken.Status)
	assert.Equal(t, "boom", broken.Error)

	for _, name := range []string{"downstream", "transitive"} {
		outcome, _ := rc.Outcome(name)
		assert.Equal(t, StatusSkipped, outcome.Status, name)
	}

	ran, _ := rc.Output("independent_ran")
	assert.Equal(t, true, ran)
	assert.True(t, rc.Failed())
}

func TestEngineRejectsCycle(t *testing.T) {
	dag := NewDag("cycle")
	dag.MustAdd("a", []string{"b"}, noop)
	dag.MustAdd("b", []string{"a"}, noop)

	engine := &Engine{}
	err := engine.Execute(context.Background(), dag, NewRunContext("text"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestEngineRejectsMissingDep(t *testing.T) {
	dag := NewDag("missing")
	dag.MustAdd("a", []string{"ghost"}, noop)

	err := (&Engine{}).Execute(context.Background(), dag, NewRunContext("text"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestEngineZeroTimeoutFailsImmediately(t *testing.T) {
	dag := NewDag("timeout")
	zero := time.Duration(0)
	require.NoError(t, dag.AddNode(&DagNode{
		Name:    "instant",
		Func:    noop,
		Timeout: &zero,
	}))

	rc := NewRunContext("text")
	require.NoError(t, (&Engine{}).Execute(context.Background(), dag, rc))

	outcome, _ := rc.Outcome("instant")
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Error, "timeout")
}

func TestEngineTimeoutCutsSlowNode(t *testing.T) {
	dag := NewDag("slow")
	short := 20 * time.Millisecond
	require.NoError(t, dag.AddNode(&DagNode{
		Name: "sleeper",
		Func: func(ctx context.Context, rc *RunContext) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		},
		Timeout: &short,
	}))

	rc := NewRunContext("text")
	require.NoError(t, (&Engine{}).Execute(context.Background(), dag, rc))

	outcome, _ := rc.Outcome("sleeper")
	assert.Equal(t, StatusFailed, outcome.Status)
}

func TestEngineRetrySucceedsOnLaterAttempt(t *testing.T) {
	dag := NewDag("retry")
	var attempts int
	require.NoError(t, dag.AddNode(&DagNode{
		Name: "flaky",
		Func: func(ctx context.Context, rc *RunContext) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		},
		Retry: &RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	}))

	rc := NewRunContext("text")
	require.NoError(t, (&Engine{}).Execute(context.Background(), dag, rc))

	assert.Equal(t, 3, attempts)
	outcome, _ := rc.Outcome("flaky")
	assert.Equal(t, StatusOK, outcome.Status)
}

func TestEngineRetriesAreInvisibleToDependents(t *testing.T) {
	dag := NewDag("retry_chain")
	var attempts int
	require.NoError(t, dag.AddNode(&DagNode{
		Name: "flaky",
		Func: func(ctx context.Context, rc *RunContext) error {
			attempts++
			if attempts < 2 {
				return errors.New("transient")
			}
			return nil
		},
		Retry: &RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond},
	}))
	var downstreamRuns int
	dag.MustAdd("downstream", []string{"flaky"}, func(ctx context.Context, rc *RunContext) error {
		downstreamRuns++
		return nil
	})

	rc := NewRunContext("text")
	require.NoError(t, (&Engine{}).Execute(context.Background(), dag, rc))
	assert.Equal(t, 1, downstreamRuns)
}

func TestEngineCancellationSkipsPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	dag := NewDag("cancel")
	dag.MustAdd("first", nil, func(ctx context.Context, rc *RunContext) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	dag.MustAdd("second", []string{"first"}, noop)

	rc := NewRunContext("text")
	require.NoError(t, (&Engine{}).Execute(ctx, dag, rc))

	second, ok := rc.Outcome("second")
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, second.Status)
}

func TestEnginePanicBecomesNodeFailure(t *testing.T) {
	dag := NewDag("panic")
	dag.MustAdd("bomb", nil, func(ctx context.Context, rc *RunContext) error {
		panic("kaboom")
	})
	dag.MustAdd("safe", nil, noop)

	rc := NewRunContext("text")
	require.NoError(t, (&Engine{}).Execute(context.Background(), dag, rc))

	bomb, _ := rc.Outcome("bomb")
	assert.Equal(t, StatusFailed, bomb.Status)
	assert.Contains(t, bomb.Error, "panic")
	safe, _ := rc.Outcome("safe")
	assert.Equal(t, StatusOK, safe.Status)
}

func TestEngineBoundsParallelism(t *testing.T) {
	dag := NewDag("parallel")
	var mu sync.Mutex
	var current, peak int
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		dag.MustAdd(name, nil, func(ctx context.Context, rc *RunContext) error {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			current--
			mu.Unlock()
			return nil
		})
	}

	rc := NewRunContext("text")
	require.NoError(t, (&Engine{MaxParallel: 2}).Execute(context.Background(), dag, rc))
	assert.LessOrEqual(t, peak, 2)
}

func TestTopoOrderBreaksTiesByName(t *testing.T) {
	dag := NewDag("ties")
	dag.MustAdd("zebra", nil, noop)
	dag.MustAdd("apple", nil, noop)
	dag.MustAdd("mango", nil, noop)

	order, err := dag.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "mango", "zebra"}, order)
}

func TestRunContextJSONRoundTrip(t *testing.T) {
	rc := NewRunContext("voice")
	rc.SetInput("utterance", "hello")
	rc.SetArtifact("page_title", "Example")
	rc.SetOutput("summary", "done")
	rc.recordEvent(NodeEvent{Node: "n1", Status: StatusOK})

	data, err := rc.MarshalJSON()
	require.NoError(t, err)

	restored := &RunContext{}
	require.NoError(t, restored.UnmarshalJSON(data))

	assert.Equal(t, rc.RunID, restored.RunID)
	assert.Equal(t, "voice", restored.Mode)
	assert.Equal(t, "hello", restored.InputString("utterance"))
	assert.Equal(t, "done", restored.OutputString("summary"))
	events := restored.Events()
	require.Len(t, events, 1)
	assert.Equal(t, StatusOK, events[0].Status)
}
