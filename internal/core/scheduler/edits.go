package scheduler

import (
	"context"
	"fmt"

	"github.com/kestreldev/kestrel/internal/api"
	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/eventbus"
)

// intent is one queued write against a task: either a field update or
// a new comment.
type intent struct {
	taskGID string
	update  *entity.TaskUpdate
	comment string
}

// editQueue serializes writes per entity. Intents for the same task
// submit strictly in order; intents for different tasks run
// independently.
type editQueue struct {
	intents []intent
	running bool
}

// SubmitUpdate queues a task field update. The store shows the change
// optimistically right away; the covered fields stay pinned against
// refresh results until the submit resolves.
func (s *Scheduler) SubmitUpdate(gid string, update entity.TaskUpdate) {
	if update.IsZero() {
		return
	}
	s.opts.Store.BeginEdit(gid, update)
	s.enqueueIntent(intent{taskGID: gid, update: &update})
}

// SubmitComment queues a new comment on the task.
func (s *Scheduler) SubmitComment(taskGID, text string) {
	if text == "" {
		return
	}
	s.enqueueIntent(intent{taskGID: taskGID, comment: text})
}

func (s *Scheduler) enqueueIntent(it intent) {
	s.editMu.Lock()
	q, ok := s.edits[it.taskGID]
	if !ok {
		q = &editQueue{}
		s.edits[it.taskGID] = q
	}
	q.intents = append(q.intents, it)
	start := !q.running
	q.running = true
	s.editMu.Unlock()

	if start {
		go s.drainEdits(it.taskGID)
	}
}

func (s *Scheduler) drainEdits(gid string) {
	for {
		s.editMu.Lock()
		q := s.edits[gid]
		if len(q.intents) == 0 {
			q.running = false
			s.editMu.Unlock()
			return
		}
		it := q.intents[0]
		q.intents = q.intents[1:]
		s.editMu.Unlock()

		s.performEdit(it)
	}
}

// performEdit submits one intent, retrying transient failures the same
// way refresh jobs do. User edits are never cancelled by navigation;
// they run against the scheduler's root context.
func (s *Scheduler) performEdit(it intent) {
	ctx := s.rootCtx()

	var lastErr error
	for attempt := 0; attempt <= s.opts.RetryAttempts; attempt++ {
		err := s.submitOnce(ctx, it)
		if err == nil {
			return
		}
		lastErr = err

		switch api.Classify(err) {
		case api.ClassCancelled:
			s.resolveFailed(it, err)
			return
		case api.ClassUnauthorized:
			s.Suspend()
			if s.opts.Bus != nil {
				s.opts.Bus.PublishAuthExpired(eventbus.AuthExpiredPayload{})
			}
			s.resolveFailed(it, err)
			return
		case api.ClassRejected:
			s.resolveFailed(it, err)
			return
		}

		if attempt == s.opts.RetryAttempts {
			break
		}
		if err := s.opts.Sleep(ctx, s.backoff(attempt, err)); err != nil {
			s.resolveFailed(it, err)
			return
		}
	}
	s.resolveFailed(it, lastErr)
}

func (s *Scheduler) submitOnce(ctx context.Context, it intent) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	if it.update != nil {
		confirmed, err := s.opts.Client.UpdateTask(reqCtx, it.taskGID, *it.update)
		if err != nil {
			return err
		}
		s.opts.Store.EndEdit(it.taskGID, *it.update, confirmed, s.opts.Now())
		return nil
	}

	comment, err := s.opts.Client.CreateComment(reqCtx, it.taskGID, it.comment)
	if err != nil {
		return err
	}
	s.opts.Store.Put(comment, s.opts.Now())
	return nil
}

// resolveFailed releases the edit's field pins and marks the entry
// stale so the next read fetches the server's truth, then tells the
// user.
func (s *Scheduler) resolveFailed(it intent, err error) {
	if it.update != nil {
		s.opts.Store.EndEdit(it.taskGID, *it.update, nil, s.opts.Now())
	}
	s.log.Error().Str("task", it.taskGID).Err(err).Msg("edit submit failed")
	if s.opts.Bus != nil {
		action := "update task"
		if it.update == nil {
			action = "add comment"
		}
		s.opts.Bus.Notify(eventbus.LevelError, fmt.Sprintf("failed to %s: %v", action, err))
	}
}

func (s *Scheduler) rootCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
