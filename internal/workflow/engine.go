package workflow

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// Engine executes DAGs. A node runs when every dependency finished ok; if
// any dependency failed or was skipped, the node is skipped. Node failures
// never abort the engine: independent branches keep running and callers
// inspect the RunContext events for per-node outcomes.
type Engine struct {
	// MaxParallel bounds concurrent node execution. 0 runs all ready
	// nodes at once.
	MaxParallel int64
	Logger      logging.Logger
}

const defaultRetryBackoff = 500 * time.Millisecond

type nodeDone struct {
	name   string
	status NodeStatus
}

// Execute runs the DAG to completion. The returned error is non-nil only for
// an invalid DAG (unknown dep or cycle); execution outcomes live on rc.
func (e *Engine) Execute(ctx context.Context, dag *Dag, rc *RunContext) error {
	logger := logging.OrNop(e.Logger)
	if err := dag.Validate(); err != nil {
		return err
	}
	logger.Info("[%s] starting DAG execution (%d nodes)", dag.Name, dag.Len())

	status := make(map[string]NodeStatus, dag.Len())
	for _, node := range dag.Nodes() {
		status[node.Name] = StatusPending
	}

	var sem *semaphore.Weighted
	if e.MaxParallel > 0 {
		sem = semaphore.NewWeighted(e.MaxParallel)
	}

	done := make(chan nodeDone, dag.Len())
	terminal := 0
	running := 0

	skip := func(name string) {
		status[name] = StatusSkipped
		terminal++
		rc.recordEvent(NodeEvent{Node: name, Status: StatusSkipped, FinishedAt: time.Now().UTC()})
		logger.Debug("[%s] node %s skipped", dag.Name, name)
	}

	for terminal < dag.Len() {
		if ctx.Err() != nil {
			// Cancelled: running nodes see ctx and exit; everything
			// not yet started is skipped.
			for _, node := range dag.Nodes() {
				if status[node.Name] == StatusPending {
					skip(node.Name)
				}
			}
			for running > 0 {
				d := <-done
				status[d.name] = d.status
				terminal++
				running--
			}
			break
		}

		launched := false
		for _, node := range dag.Nodes() {
			if status[node.Name] != StatusPending {
				continue
			}
			ready, doomed := e.depState(node, status)
			if doomed {
				skip(node.Name)
				continue
			}
			if !ready {
				continue
			}
			status[node.Name] = StatusRunning
			running++
			launched = true
			go e.runNode(ctx, dag.Name, node, rc, sem, done)
		}

		if terminal >= dag.Len() {
			break
		}
		if running == 0 {
			if launched {
				continue
			}
			// Unreachable on a validated DAG.
			return nerrors.Internal("engine", fmt.Sprintf("DAG %s has no runnable nodes", dag.Name))
		}

		d := <-done
		status[d.name] = d.status
		terminal++
		running--
	}

	rc.FinishedAt = time.Now().UTC()
	logger.Info("[%s] DAG execution complete", dag.Name)
	return nil
}

// depState reports whether a node is ready (all deps ok) or doomed (some dep
// failed or was skipped).
func (e *Engine) depState(node *DagNode, status map[string]NodeStatus) (ready, doomed bool) {
	ready = true
	for _, dep := range node.Deps {
		switch status[dep] {
		case StatusOK:
		case StatusFailed, StatusSkipped:
			return false, true
		default:
			ready = false
		}
	}
	return ready, false
}

func (e *Engine) runNode(ctx context.Context, dagName string, node *DagNode, rc *RunContext, sem *semaphore.Weighted, done chan<- nodeDone) {
	logger := logging.OrNop(e.Logger)
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			rc.recordEvent(NodeEvent{Node: node.Name, Status: StatusSkipped, FinishedAt: time.Now().UTC()})
			done <- nodeDone{node.Name, StatusSkipped}
			return
		}
		defer sem.Release(1)
	}

	started := time.Now().UTC()
	rc.recordEvent(NodeEvent{Node: node.Name, Status: StatusRunning, StartedAt: started})

	attempts := 1
	backoff := defaultRetryBackoff
	if node.Retry != nil {
		if node.Retry.MaxAttempts > 1 {
			attempts = node.Retry.MaxAttempts
		}
		if node.Retry.Backoff > 0 {
			backoff = node.Retry.Backoff
		}
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = e.runAttempt(ctx, node, rc)
		if err == nil || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			logger.Warn("[%s] node %s attempt %d/%d failed: %v", dagName, node.Name, attempt, attempts, err)
			if !sleepCtx(ctx, backoff<<(attempt-1)) {
				break
			}
		}
	}

	finished := time.Now().UTC()
	outcome := StatusOK
	errText := ""
	if err != nil {
		outcome = StatusFailed
		errText = err.Error()
		logger.Error("[%s] node %s failed: %v", dagName, node.Name, err)
	} else {
		logger.Debug("[%s] node %s ok in %s", dagName, node.Name, finished.Sub(started))
	}
	rc.recordEvent(NodeEvent{
		Node:       node.Name,
		Status:     outcome,
		StartedAt:  started,
		FinishedAt: finished,
		Error:      errText,
	})
	done <- nodeDone{node.Name, outcome}
}

// runAttempt executes the node function once with its timeout applied,
// converting panics and context expiry into taxonomy errors.
func (e *Engine) runAttempt(ctx context.Context, node *DagNode, rc *RunContext) (err error) {
	op := "dag." + node.Name
	defer func() {
		if r := recover(); r != nil {
			err = nerrors.Internal(op, fmt.Sprintf("panic: %v", r))
		}
	}()

	if node.Timeout != nil {
		if *node.Timeout <= 0 {
			return nerrors.Timeout(op, "zero timeout")
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *node.Timeout)
		defer cancel()
	}

	err = node.Func(ctx, rc)
	if err != nil && ctx.Err() != nil {
		return nerrors.FromContext(op, ctx.Err())
	}
	return err
}

// sleepCtx waits for d and reports false if ctx expired first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
