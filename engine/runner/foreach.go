package runner

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/supernovae-st/nika-sub001/engine/errs"
	"github.com/supernovae-st/nika-sub001/engine/event"
	"github.com/supernovae-st/nika-sub001/engine/executor"
	"github.com/supernovae-st/nika-sub001/engine/workflow"
)

// runForEach expands t into one child task per item in t.ForEach.Items,
// running children concurrently up to t.ForEach.Concurrency (falling back
// to the runner's default), and aggregates their outputs into an ordered
// list under t's own task id (spec.md §3 ForEach, §9 design note). A
// child's id is t.ID with a "." and its index appended; children emit
// their own TaskScheduled/TaskStarted/TaskCompleted/TaskFailed events
// independently of the parent's.
func (r *Runner) runForEach(ctx context.Context, t *workflow.Task) (any, error) {
	r.log.Emit(event.KindTaskStarted, map[string]any{"task_id": t.ID})

	items, err := r.exec.ResolveForEachItems(ctx, t)
	if err != nil {
		ee, ok := err.(*errs.Error)
		if !ok {
			ee = errs.Internal("runner.runForEach", err)
		}
		r.log.Emit(event.KindTaskFailed, map[string]any{"task_id": t.ID, "error": ee.AsMap()})
		return nil, ee
	}
	if len(items) == 0 {
		r.st.Insert(t.ID, []any{})
		r.log.Emit(event.KindTaskCompleted, map[string]any{"task_id": t.ID})
		return []any{}, nil
	}

	limit := t.ForEach.Concurrency
	if limit <= 0 {
		limit = r.defaultForEachLimit
	}
	if limit > len(items) {
		limit = len(items)
	}
	sem := semaphore.NewWeighted(int64(limit))

	results := make([]any, len(items))
	var firstErr *errs.Error
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			firstErr = errs.Cancelled(ctx.Err().Error())
			break
		}
		wg.Add(1)
		go func(i int, item any) {
			defer wg.Done()
			defer sem.Release(1)

			child := *t
			child.ID = fmt.Sprintf("%s.%d", t.ID, i)
			child.ForEach = nil

			r.log.Emit(event.KindTaskScheduled, map[string]any{"task_id": child.ID, "dependencies": []string{t.ID}})
			out, err := r.exec.Run(ctx, &child, executor.IterScope{Name: t.ForEach.As, Value: item})

			mu.Lock()
			defer mu.Unlock()
			results[i] = out
			if err != nil {
				ee, ok := err.(*errs.Error)
				if !ok {
					ee = errs.Internal("runner.runForEach", err)
				}
				if firstErr == nil {
					firstErr = ee
				}
			}
		}(i, item)
	}
	wg.Wait()

	if firstErr != nil {
		r.log.Emit(event.KindTaskFailed, map[string]any{"task_id": t.ID, "error": firstErr.AsMap()})
		return nil, firstErr
	}

	r.st.Insert(t.ID, results)
	r.log.Emit(event.KindTaskCompleted, map[string]any{"task_id": t.ID})
	return results, nil
}
