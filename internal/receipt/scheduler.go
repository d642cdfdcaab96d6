package receipt

import (
	"context"
	"time"
)

type Trigger string

const (
	TriggerMount   Trigger = "mount"
	TriggerVisible Trigger = "visible"
	TriggerFocus   Trigger = "focus"
	TriggerTick    Trigger = "tick"
)

type recoverer interface {
	Recover(ctx context.Context, ownerID string) Outcome
}

// Scheduler turns lifecycle triggers into recovery passes. Triggers that
// arrive while a pass is running are dropped.
type Scheduler struct {
	rec      recoverer
	ownerID  string
	triggers chan Trigger

	// OnOutcome, when set, observes every finished pass.
	OnOutcome func(Trigger, Outcome)
}

func NewScheduler(rec recoverer, ownerID string) *Scheduler {
	return &Scheduler{
		rec:      rec,
		ownerID:  ownerID,
		triggers: make(chan Trigger),
	}
}

// Trigger requests a pass. It reports false when the trigger was dropped.
func (s *Scheduler) Trigger(t Trigger) bool {
	select {
	case s.triggers <- t:
		return true
	default:
		return false
	}
}

// Run serves triggers until ctx is done. A positive tick also fires
// TriggerTick periodically.
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) error {
	var tickC <-chan time.Time
	if tick > 0 {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		var t Trigger
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t = <-s.triggers:
		case <-tickC:
			t = TriggerTick
		}

		outcome := s.rec.Recover(ctx, s.ownerID)
		if s.OnOutcome != nil {
			s.OnOutcome(t, outcome)
		}
	}
}
