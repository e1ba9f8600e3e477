// Package runner implements the engine's DAG scheduler (nika spec §4.8,
// component C9): it walks a validated workflow.Document's dependency
// graph, dispatching each task through the executor as soon as every
// upstream task it depends on has succeeded, bounding concurrency, and
// propagating failure as abandonment rather than aborting the run.
package runner

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/supernovae-st/nika-sub001/engine/core"
	"github.com/supernovae-st/nika-sub001/engine/errs"
	"github.com/supernovae-st/nika-sub001/engine/event"
	"github.com/supernovae-st/nika-sub001/engine/executor"
	"github.com/supernovae-st/nika-sub001/engine/store"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
)

// Result is what one Run call returns: the designated output (or the last
// task to complete, if none is designated), every task's recorded output,
// and the per-task failures that occurred along the way.
type Result struct {
	GenerationID string
	FinalOutput  any
	TaskResults  map[string]any
	Failures     map[string]*errs.Error
	Failed       bool
}

// Runner drives one workflow run at a time; build a fresh Runner per run
// since it holds run-scoped scheduling state.
type Runner struct {
	doc  *workflow.Document
	exec *executor.Executor
	log  *event.Log
	st   *store.Store

	maxConcurrency      int
	defaultForEachLimit int
}

// New creates a Runner. maxConcurrency bounds how many tasks (or for_each
// children) may execute at once across the whole run; defaultForEachLimit
// is the fan-out width a for_each task uses when it doesn't declare its
// own concurrency.
func New(doc *workflow.Document, exec *executor.Executor, log *event.Log, st *store.Store, maxConcurrency, defaultForEachLimit int) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	if defaultForEachLimit <= 0 {
		defaultForEachLimit = maxConcurrency
	}
	if doc.MaxConcurrency > 0 {
		maxConcurrency = doc.MaxConcurrency
	}
	return &Runner{doc: doc, exec: exec, log: log, st: st, maxConcurrency: maxConcurrency, defaultForEachLimit: defaultForEachLimit}
}

// taskOutcome is what a task's goroutine reports back to the scheduler
// loop once it reaches a terminal state.
type taskOutcome struct {
	id  string
	err *errs.Error
}

// Run walks the graph to completion (spec §4.8): validate, emit
// WorkflowStarted and one TaskScheduled per task, then repeatedly dispatch
// whatever is ready until every task is terminal. It never returns early on
// a task failure — downstream tasks are abandoned instead (spec §4.9
// "drain, not fail-fast" default) — so the returned error is non-nil only
// for a pre-dispatch validation failure or an internal scheduling fault.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.doc.Validate(); err != nil {
		return nil, err
	}

	genID := uuid.NewString()
	deps := r.doc.AllDependencies()

	r.log.Emit(event.KindWorkflowStarted, map[string]any{
		"generation_id": genID, "task_count": len(r.doc.Tasks), "engine_version": core.GetVersion(),
		"workflow_hash": "sha256:" + core.ETagFromAny(r.doc),
	})
	for i := range r.doc.Tasks {
		t := &r.doc.Tasks[i]
		r.log.Emit(event.KindTaskScheduled, map[string]any{"task_id": t.ID, "dependencies": deps[t.ID]})
	}

	state := make(map[string]core.StatusType, len(r.doc.Tasks))
	for i := range r.doc.Tasks {
		state[r.doc.Tasks[i].ID] = core.StatusPending
	}
	failures := make(map[string]*errs.Error)
	lastCompleted := ""

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(r.maxConcurrency))
	outcomes := make(chan taskOutcome, len(r.doc.Tasks))

	// dispatchReady marks every abandonable task abandoned and launches a
	// goroutine for every ready task the semaphore currently has room for;
	// it is safe to call repeatedly as state changes (idempotent: it never
	// redispatches a task already marked dispatched).
	dispatched := make(map[string]bool, len(r.doc.Tasks))
	dispatchReady := func() {
		mu.Lock()
		defer mu.Unlock()
		progress := true
		for progress {
			progress = false
			for i := range r.doc.Tasks {
				t := &r.doc.Tasks[i]
				if dispatched[t.ID] {
					continue
				}
				ready, abandon := true, false
				for _, dep := range deps[t.ID] {
					switch state[dep] {
					case core.StatusSuccess:
					case core.StatusFailed, core.StatusAbandoned, core.StatusCanceled:
						abandon = true
					default:
						ready = false
					}
				}
				if abandon {
					dispatched[t.ID] = true
					state[t.ID] = core.StatusAbandoned
					progress = true
					continue
				}
				if !ready {
					continue
				}
				if !sem.TryAcquire(1) {
					continue
				}
				dispatched[t.ID] = true
				state[t.ID] = core.StatusRunning
				progress = true
				wg.Add(1)
				go func(t *workflow.Task) {
					defer wg.Done()
					defer sem.Release(1)
					_, err := r.dispatchOne(ctx, t)
					var ee *errs.Error
					if err != nil {
						ee, _ = err.(*errs.Error)
						if ee == nil {
							ee = errs.Internal("runner.dispatchOne", err)
						}
					}
					outcomes <- taskOutcome{id: t.ID, err: ee}
				}(t)
			}
		}
	}

	total := len(r.doc.Tasks)
	finished := 0
	dispatchReady()
	for finished < total {
		select {
		case oc := <-outcomes:
			mu.Lock()
			if oc.err != nil {
				state[oc.id] = core.StatusFailed
				failures[oc.id] = oc.err
			} else {
				state[oc.id] = core.StatusSuccess
				lastCompleted = oc.id
			}
			finished++
			mu.Unlock()
			dispatchReady()
		case <-ctx.Done():
			wg.Wait()
			return r.cancel(ctx, genID, state, failures, &mu)
		}
	}
	wg.Wait()

	final := r.finalOutput(lastCompleted)
	res := &Result{
		GenerationID: genID,
		FinalOutput:  final,
		TaskResults:  r.st.Snapshot(),
		Failures:     failures,
		Failed:       len(failures) > 0,
	}

	if res.Failed {
		r.log.Emit(event.KindWorkflowFailed, map[string]any{
			"generation_id": genID, "failed_tasks": failedIDs(failures),
		})
	} else {
		r.log.Emit(event.KindWorkflowCompleted, map[string]any{
			"generation_id": genID, "final_output": res.FinalOutput,
		})
	}
	return res, nil
}

// cancel marks every non-terminal task cancelled and emits WorkflowFailed
// with the cancellation reason. Callers must wg.Wait() before calling this
// so no in-flight task goroutine still writes to the store or state map.
func (r *Runner) cancel(ctx context.Context, genID string, state map[string]core.StatusType, failures map[string]*errs.Error, mu *sync.Mutex) (*Result, error) {
	mu.Lock()
	for id, s := range state {
		if !s.IsTerminal() {
			state[id] = core.StatusCanceled
			failures[id] = errs.Cancelled(ctx.Err().Error())
		}
	}
	mu.Unlock()

	res := &Result{
		GenerationID: genID,
		TaskResults:  r.st.Snapshot(),
		Failures:     failures,
		Failed:       true,
	}
	r.log.Emit(event.KindWorkflowFailed, map[string]any{
		"generation_id": genID, "reason": ctx.Err().Error(), "failed_tasks": failedIDs(failures),
	})
	return res, nil
}

// dispatchOne runs a single scheduling unit: a plain task goes straight to
// the executor; a for_each task fans out into indexed children (runner.go
// keeps the two paths in one switch so the scheduling loop above never has
// to know the difference).
func (r *Runner) dispatchOne(ctx context.Context, t *workflow.Task) (any, error) {
	if t.ForEach != nil {
		return r.runForEach(ctx, t)
	}
	return r.exec.Run(ctx, t, executor.IterScope{})
}

// finalOutput picks the task designated output: true, falling back to the
// last task the scheduler observed complete successfully (spec §4.8 "final
// output selection").
func (r *Runner) finalOutput(lastCompleted string) any {
	if t, ok := r.doc.OutputTask(); ok {
		if v, ok := r.st.Get(t.ID); ok {
			return v
		}
		return nil
	}
	if lastCompleted == "" {
		return nil
	}
	v, _ := r.st.Get(lastCompleted)
	return v
}

func failedIDs(failures map[string]*errs.Error) []string {
	out := make([]string, 0, len(failures))
	for id := range failures {
		out = append(out, id)
	}
	return out
}
