package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/B-A-M-N/NERVA/internal/knowledge"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/memory"
	"github.com/B-A-M-N/NERVA/internal/observability"
	"github.com/B-A-M-N/NERVA/internal/skills"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

const (
	// DefaultMaxConcurrent bounds concurrently executing dispatches.
	DefaultMaxConcurrent int64 = 4
	// DefaultDeadline bounds one dispatch end to end.
	DefaultDeadline = 5 * time.Minute

	refusedMessage = "I won't do that without an explicit confirmation."
)

// Dispatcher is the task pipeline front door. It is safe for concurrent use;
// a global semaphore applies backpressure when every slot is busy.
type Dispatcher struct {
	registry *skills.Registry
	router   *Router
	gate     *SafetyGate
	env      *skills.Env
	engine   *workflow.Engine

	memory  *memory.Store
	threads *knowledge.ThreadStore
	graph   *knowledge.Graph

	sem      *semaphore.Weighted
	deadline time.Duration

	clarifiers map[Source]Clarifier
	confirmers map[Source]Confirmer

	logger logging.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDeadline overrides the per-dispatch deadline.
func WithDeadline(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.deadline = d
		}
	}
}

// WithMaxConcurrent overrides the dispatch concurrency limit.
func WithMaxConcurrent(n int64) DispatcherOption {
	return func(dp *Dispatcher) {
		if n > 0 {
			dp.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithClarifier registers the clarification channel for a source.
func WithClarifier(source Source, c Clarifier) DispatcherOption {
	return func(dp *Dispatcher) { dp.clarifiers[source] = c }
}

// WithConfirmer registers the confirmation channel for a source.
func WithConfirmer(source Source, c Confirmer) DispatcherOption {
	return func(dp *Dispatcher) { dp.confirmers[source] = c }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logging.Logger) DispatcherOption {
	return func(dp *Dispatcher) { dp.logger = l }
}

// NewDispatcher wires the pipeline together.
func NewDispatcher(registry *skills.Registry, router *Router, env *skills.Env,
	mem *memory.Store, threads *knowledge.ThreadStore, graph *knowledge.Graph,
	opts ...DispatcherOption) *Dispatcher {

	dp := &Dispatcher{
		registry:   registry,
		router:     router,
		gate:       NewSafetyGate(),
		env:        env,
		engine:     &workflow.Engine{MaxParallel: DefaultMaxConcurrent},
		memory:     mem,
		threads:    threads,
		graph:      graph,
		sem:        semaphore.NewWeighted(DefaultMaxConcurrent),
		deadline:   DefaultDeadline,
		clarifiers: make(map[Source]Clarifier),
		confirmers: make(map[Source]Confirmer),
		logger:     logging.NewComponentLogger("Dispatcher"),
	}
	for _, opt := range opts {
		opt(dp)
	}
	dp.engine.Logger = dp.logger
	return dp
}

// Dispatch runs one task through the whole pipeline and always returns a
// TaskResult; the pipeline never panics outward and never returns an error.
func (dp *Dispatcher) Dispatch(ctx context.Context, task TaskContext) *TaskResult {
	started := time.Now()
	result := dp.dispatch(ctx, task)
	observability.DispatchTotal.WithLabelValues(result.Route, string(result.Status)).Inc()
	observability.DispatchDuration.Observe(time.Since(started).Seconds())
	dp.logger.Info("dispatch %q -> %s (%s)", truncate(task.Utterance, 60), result.Status, result.Route)
	return result
}

func (dp *Dispatcher) dispatch(ctx context.Context, task TaskContext) *TaskResult {
	if err := dp.sem.Acquire(ctx, 1); err != nil {
		return &TaskResult{Status: StatusFailed, Summary: "cancelled while waiting for a dispatch slot"}
	}
	defer dp.sem.Release(1)

	utterance := strings.TrimSpace(task.Utterance)

	// One clarification round, on the channel the task arrived on.
	if needs, question := dp.router.CheckAmbiguity(ctx, utterance); needs {
		reply, ok := dp.clarify(ctx, task.Source, question)
		if !ok {
			result := &TaskResult{Status: StatusClarificationNeeded, Summary: question}
			dp.writeBack(ctx, task, utterance, "", result)
			return result
		}
		utterance = fmt.Sprintf("%s (clarification: %s)", utterance, reply)
	}

	if risky, trigger := dp.gate.Risky(utterance); risky {
		if !dp.confirm(ctx, task.Source, fmt.Sprintf("This looks irreversible (%q). Proceed?", trigger)) {
			result := &TaskResult{Status: StatusRefused, Summary: refusedMessage}
			dp.writeBack(ctx, task, utterance, "", result)
			return result
		}
	}

	route := dp.router.Route(ctx, utterance)
	skill, ok := dp.registry.Get(route)
	if !ok {
		skill, _ = dp.registry.Get("free_form")
		route = "free_form"
	}

	result := dp.execute(ctx, task, skill, utterance)
	result.Route = route
	dp.writeBack(ctx, task, utterance, route, result)
	return result
}

func (dp *Dispatcher) execute(ctx context.Context, task TaskContext, skill *skills.Skill, utterance string) *TaskResult {
	dag, err := skill.Build(dp.env, utterance)
	if err != nil {
		return &TaskResult{Status: StatusFailed, Summary: "could not plan that task: " + err.Error()}
	}

	runCtx, cancel := context.WithTimeout(ctx, dp.deadline)
	defer cancel()

	rc := workflow.NewRunContext(string(task.Source))
	rc.SetInput("utterance", utterance)
	for k, v := range task.Metadata {
		rc.SetInput(k, v)
	}

	if err := dp.engine.Execute(runCtx, dag, rc); err != nil {
		return &TaskResult{Status: StatusFailed, Summary: "workflow invalid: " + err.Error(), Steps: rc.Events()}
	}
	for _, ev := range rc.Events() {
		if ev.Status.Terminal() {
			observability.DagNodeTotal.WithLabelValues(string(ev.Status)).Inc()
		}
	}

	result := &TaskResult{
		Answer:    rc.OutputString("answer"),
		Summary:   rc.OutputString("summary"),
		Artifacts: rc.Artifacts(),
		Steps:     rc.Events(),
	}
	if rc.Failed() {
		result.Status = StatusFailed
		if result.Summary == "" {
			result.Summary = "Something went wrong while handling that: " + firstNodeError(rc)
		}
		return result
	}
	result.Status = StatusOK
	if result.Summary == "" {
		result.Summary = "Done."
	}
	return result
}

// writeBack records the dispatch unconditionally: one TASK_RESULT memory
// item, one thread entry referencing it, and graph ingestion. Failures here
// are logged, never surfaced; the user already has their answer.
func (dp *Dispatcher) writeBack(ctx context.Context, task TaskContext, utterance, route string, result *TaskResult) {
	if dp.memory == nil || dp.threads == nil {
		return
	}
	text := fmt.Sprintf("task: %s\nstatus: %s\nsummary: %s", utterance, result.Status, result.Summary)
	item := memory.NewItem(memory.KindTaskResult, text, []string{"dispatch", route}, map[string]any{
		"route":  route,
		"status": string(result.Status),
		"answer": result.Answer,
		"source": string(task.Source),
	})
	memID, err := dp.memory.Add(ctx, item)
	if err != nil {
		dp.logger.Warn("write-back memory add failed: %v", err)
		return
	}

	project := task.Metadata["project"]
	if project == "" {
		project = "general"
	}
	thread, ok := dp.threads.FindByProject(project)
	if !ok {
		thread = dp.threads.Create(project, truncate(utterance, 80))
	}
	entry, err := dp.threads.AddEntry(thread.ThreadID, result.Summary, []string{memID})
	if err != nil {
		dp.logger.Warn("write-back thread entry failed: %v", err)
		return
	}
	result.ThreadID = thread.ThreadID

	if dp.graph != nil {
		dp.graph.IngestThread(thread.ThreadID, thread.Title, []knowledge.ThreadEntry{entry})
	}
}

func (dp *Dispatcher) clarify(ctx context.Context, source Source, question string) (string, bool) {
	c, ok := dp.clarifiers[source]
	if !ok {
		return "", false
	}
	reply, err := c.Clarify(ctx, question)
	if err != nil || strings.TrimSpace(reply) == "" {
		return "", false
	}
	return strings.TrimSpace(reply), true
}

func (dp *Dispatcher) confirm(ctx context.Context, source Source, prompt string) bool {
	c, ok := dp.confirmers[source]
	if !ok {
		return false
	}
	approved, err := c.Confirm(ctx, prompt)
	if err != nil {
		return false
	}
	return approved
}

func firstNodeError(rc *workflow.RunContext) string {
	for _, ev := range rc.Events() {
		if ev.Status == workflow.StatusFailed && ev.Error != "" {
			return ev.Error
		}
	}
	return "a step failed"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
