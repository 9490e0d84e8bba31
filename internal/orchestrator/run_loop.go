package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/swarm/internal/engine"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// AutoMode reports whether the loop starts tasks on its own.
func (o *Orchestrator) AutoMode() bool {
	return o.autoMode.Load()
}

// SetAutoMode switches auto mode. Setting the current value is a no-op.
// Running tasks are never affected.
func (o *Orchestrator) SetAutoMode(on bool) {
	if o.autoMode.Swap(on) == on {
		return
	}
	o.logger.Log("auto mode %t", on)
	o.emit(Event{Type: EventAutoMode, Message: fmt.Sprintf("%t", on)})
	if on {
		select {
		case o.kick <- struct{}{}:
		default:
		}
	}
}

// ToggleAutoMode flips auto mode and returns the new value.
func (o *Orchestrator) ToggleAutoMode() bool {
	for {
		cur := o.autoMode.Load()
		if o.autoMode.CompareAndSwap(cur, !cur) {
			o.logger.Log("auto mode %t", !cur)
			o.emit(Event{Type: EventAutoMode, Message: fmt.Sprintf("%t", !cur)})
			if !cur {
				select {
				case o.kick <- struct{}{}:
				default:
				}
			}
			return !cur
		}
	}
}

// Run fires orchestration steps every poll interval while auto mode is on,
// keeping at most maxConcurrent tasks in flight. It returns when ctx is
// cancelled; in-flight runs continue until their own deadline, see Wait.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	o.logger.Log("run loop started (interval %s, max concurrent %d)", o.pollInterval, o.maxConcurrent)
	for {
		select {
		case <-ctx.Done():
			o.logger.Log("run loop stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-o.kick:
		}
		if o.AutoMode() {
			o.dispatch(ctx)
		}
	}
}

// dispatch starts one orchestration step per free slot while ready tasks
// outnumber the steps still on their way to claiming one.
func (o *Orchestrator) dispatch(ctx context.Context) {
	for {
		if int64(o.engine.QueueStatus().Ready) <= o.unclaimed.Load() {
			return
		}
		select {
		case o.slots <- struct{}{}:
		default:
			return
		}

		o.unclaimed.Add(1)
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			defer func() { <-o.slots }()
			o.step(ctx)
		}()
	}
}

// step runs one orchestration step and logs anything the loop cannot act on.
func (o *Orchestrator) step(ctx context.Context) {
	var once sync.Once
	claimed := func() { once.Do(func() { o.unclaimed.Add(-1) }) }
	defer claimed()

	out, err := o.orchestrateNext(ctx, claimed)
	switch {
	case errors.Is(err, ErrNoAgent):
		o.logger.Log("auto: %v", err)
	case err != nil:
		o.logger.Log("auto: orchestrate failed: %v", err)
	case out.Kind == OutcomeIdle && len(out.Blocked) > 0:
		o.logger.Log("auto: idle with %d blocked tasks", len(out.Blocked))
	case out.NoteErr != nil:
		o.logger.Log("auto: %v", out.NoteErr)
	}
}

// Wait blocks until every in-flight orchestration step has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// AutoDecompose decomposes notes whose ids arrive on ids, skipping notes
// that already have tasks or are completed. It returns when ids is closed
// or ctx is cancelled.
func (o *Orchestrator) AutoDecompose(ctx context.Context, ids <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-ids:
			if !ok {
				return
			}
			if len(o.engine.TasksForNote(id)) > 0 {
				continue
			}
			note, err := o.store.GetNote(id)
			if err != nil {
				o.logger.Log("auto-decompose %s: %v", id, err)
				continue
			}
			if note.Status == models.NoteStatusCompleted {
				continue
			}
			if _, err := o.Decompose(ctx, id); err != nil && !errors.Is(err, engine.ErrDuplicateID) {
				o.logger.Log("auto-decompose %s: %v", id, err)
			}
		}
	}
}
