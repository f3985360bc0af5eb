package mediator

import (
	"context"
	"time"
)

// TaskInfo describes a task to hooks.
type TaskInfo struct {
	ContextID   string
	Component   string
	MessageType string
	StartedAt   time.Time
	// Duration is only set for OnTaskDone and OnTaskError.
	Duration time.Duration
}

// TaskHooks are optional callbacks around task execution. Nil hooks are skipped.
type TaskHooks struct {
	OnTaskStart func(info TaskInfo)
	OnTaskDone  func(info TaskInfo)
	OnTaskError func(info TaskInfo, err error)
}

// Merge combines two TaskHooks; other's hooks run after h's.
func (h TaskHooks) Merge(other TaskHooks) TaskHooks {
	return TaskHooks{
		OnTaskStart: chainInfoHooks(h.OnTaskStart, other.OnTaskStart),
		OnTaskDone:  chainInfoHooks(h.OnTaskDone, other.OnTaskDone),
		OnTaskError: chainErrorHooks(h.OnTaskError, other.OnTaskError),
	}
}

func chainInfoHooks(a, b func(TaskInfo)) func(TaskInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info TaskInfo) {
		a(info)
		b(info)
	}
}

func chainErrorHooks(a, b func(TaskInfo, error)) func(TaskInfo, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info TaskInfo, err error) {
		a(info, err)
		b(info, err)
	}
}

// TaskHooksMiddleware invokes hooks at the start and end of every task.
func TaskHooksMiddleware(hooks TaskHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "task_hooks",
		Middleware: taskHooksMiddleware(hooks),
	}
}

func taskHooksMiddleware(hooks TaskHooks) HandlerMiddleware {
	return func(h HandlerFunc) HandlerFunc {
		return func(ctx context.Context, task Task) error {
			info := TaskInfo{
				ContextID:   task.ContextID,
				Component:   task.Component.Name(),
				MessageType: string(task.Message.Type()),
				StartedAt:   time.Now(),
			}
			if hooks.OnTaskStart != nil {
				hooks.OnTaskStart(info)
			}

			err := h(ctx, task)
			info.Duration = time.Since(info.StartedAt)

			if err != nil {
				if hooks.OnTaskError != nil {
					hooks.OnTaskError(info, err)
				}
				return err
			}
			if hooks.OnTaskDone != nil {
				hooks.OnTaskDone(info)
			}
			return nil
		}
	}
}
