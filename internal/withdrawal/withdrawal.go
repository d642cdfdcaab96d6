// Package withdrawal persists the multi-step withdrawal wizard so it
// survives restarts. Saved progress is dropped 24h after its last update.
package withdrawal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	StateKey = "zenfi.withdrawal_flow"
	MaxAge   = 24 * time.Hour
)

var ErrInvalidStep = errors.New("invalid withdrawal step")

type Step string

const (
	StepForm                Step = "form"
	StepProcessing          Step = "processing"
	StepActivationCode      Step = "activation-code"
	StepActivationForm      Step = "activation-form"
	StepPaymentDetails      Step = "payment-details"
	StepVerifyingPayment    Step = "verifying-payment"
	StepPaymentNotConfirmed Step = "payment-not-confirmed"
)

var Steps = []Step{
	StepForm,
	StepProcessing,
	StepActivationCode,
	StepActivationForm,
	StepPaymentDetails,
	StepVerifyingPayment,
	StepPaymentNotConfirmed,
}

func (s Step) Valid() bool {
	for _, step := range Steps {
		if s == step {
			return true
		}
	}
	return false
}

// State is the persisted wizard. Timestamp is unix milliseconds.
type State struct {
	Step               Step            `json:"step"`
	WithdrawalID       string          `json:"withdrawalId,omitempty"`
	FormData           json.RawMessage `json:"formData,omitempty"`
	ActivationFormData json.RawMessage `json:"activationFormData,omitempty"`
	Timestamp          int64           `json:"timestamp"`
}

// Update holds the fields to change. Nil fields keep their value.
type Update struct {
	Step               *Step
	WithdrawalID       *string
	FormData           json.RawMessage
	ActivationFormData json.RawMessage
}

type store interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

type Option func(*Flow)

func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

type Flow struct {
	store store
	now   func() time.Time

	mu    sync.Mutex
	state State
}

// Load restores the saved wizard, or starts a fresh one when there is
// none or it has expired.
func Load(ctx context.Context, s store, opts ...Option) (*Flow, error) {
	f := &Flow{
		store: s,
		now:   time.Now,
		state: State{Step: StepForm},
	}
	for _, opt := range opts {
		opt(f)
	}

	var saved State
	ok, err := s.GetJSON(ctx, StateKey, &saved)
	if err != nil {
		log.Printf("err: withdrawal: load state: %v\n", err)
		return f, nil
	}
	if !ok {
		return f, nil
	}

	age := f.now().Sub(time.UnixMilli(saved.Timestamp))
	if age > MaxAge || !saved.Step.Valid() {
		if err := s.Delete(ctx, StateKey); err != nil {
			return nil, fmt.Errorf("store.Delete: %w", err)
		}
		return f, nil
	}

	f.state = saved
	return f, nil
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Update merges u into the state, stamps it and saves the whole object.
func (f *Flow) Update(ctx context.Context, u Update) (State, error) {
	if u.Step != nil && !u.Step.Valid() {
		return State{}, fmt.Errorf("%w: %q", ErrInvalidStep, *u.Step)
	}

	f.mu.Lock()
	next := f.state
	if u.Step != nil {
		next.Step = *u.Step
	}
	if next.Step == "" {
		next.Step = StepForm
	}
	if u.WithdrawalID != nil {
		next.WithdrawalID = *u.WithdrawalID
	}
	if u.FormData != nil {
		next.FormData = u.FormData
	}
	if u.ActivationFormData != nil {
		next.ActivationFormData = u.ActivationFormData
	}
	next.Timestamp = f.now().UnixMilli()
	f.state = next
	f.mu.Unlock()

	if err := f.store.SetJSON(ctx, StateKey, next); err != nil {
		log.Printf("err: withdrawal: save state: %v\n", err)
	}

	return next, nil
}

// Clear forgets the wizard.
func (f *Flow) Clear(ctx context.Context) error {
	f.mu.Lock()
	f.state = State{Step: StepForm}
	f.mu.Unlock()

	if err := f.store.Delete(ctx, StateKey); err != nil {
		return fmt.Errorf("store.Delete: %w", err)
	}
	return nil
}

func StepPtr(s Step) *Step {
	return &s
}

func StringPtr(s string) *string {
	return &s
}
