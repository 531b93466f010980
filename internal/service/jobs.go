package service

import (
	"context"

	"github.com/farellandr/eventhub/internal/access"
	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/notify"
)

// JobService exposes the scheduled triggers behind the access gate.
type JobService struct {
	gate      *access.Gate
	reminders *notify.Reminders
}

func NewJobService(gate *access.Gate, reminders *notify.Reminders) *JobService {
	return &JobService{gate: gate, reminders: reminders}
}

func (s *JobService) RunReminders(ctx context.Context, actor *access.Actor) (notify.RunResult, error) {
	if err := s.gate.Authorize(actor, access.RunReminders); err != nil {
		return notify.RunResult{}, err
	}
	result, err := s.reminders.RunDaily(ctx)
	if err != nil {
		return result, apperr.Internal("reminder job failed", err)
	}
	return result, nil
}

func (s *JobService) ProcessPending(ctx context.Context, actor *access.Actor, limit int) (notify.RunResult, error) {
	if err := s.gate.Authorize(actor, access.ProcessPending); err != nil {
		return notify.RunResult{}, err
	}
	result, err := s.reminders.ProcessPending(ctx, limit)
	if err != nil {
		return result, apperr.Internal("pending notification job failed", err)
	}
	return result, nil
}
