// Package cooldown tracks the wait between reward claims. The deadline is
// kept locally for responsiveness and remotely for other devices; the
// later of the two live copies wins.
package cooldown

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	LocalKey        = "zenfi.next_claim_time"
	DefaultDuration = 5 * time.Minute

	defaultTick        = time.Second
	remoteWriteTimeout = 10 * time.Second
)

type localStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type remoteStore interface {
	GetNextClaimTime(ctx context.Context) (*time.Time, error)
	SetNextClaimTime(ctx context.Context, t *time.Time) error
}

type State struct {
	CanClaim      bool          `json:"can_claim"`
	Remaining     time.Duration `json:"remaining"`
	RemainingTime string        `json:"remaining_time"`
}

type Option func(*Timer)

func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

func WithDuration(d time.Duration) Option {
	return func(t *Timer) { t.duration = d }
}

func WithTick(d time.Duration) Option {
	return func(t *Timer) { t.tick = d }
}

type Timer struct {
	local    localStore
	remote   remoteStore
	now      func() time.Time
	duration time.Duration
	tick     time.Duration

	mu       sync.Mutex
	deadline time.Time

	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// New returns an idle Timer. remote may be nil for a local-only timer.
func New(local localStore, remote remoteStore, opts ...Option) *Timer {
	t := &Timer{
		local:    local,
		remote:   remote,
		now:      time.Now,
		duration: DefaultDuration,
		tick:     defaultTick,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start loads the local deadline, reconciles it with the remote one and
// starts the ticker that expires it.
func (t *Timer) Start(ctx context.Context) error {
	local, err := t.loadLocal(ctx)
	if err != nil {
		return err
	}

	var remote *time.Time
	if t.remote != nil {
		remote, err = t.remote.GetNextClaimTime(ctx)
		if err != nil {
			log.Printf("err: cooldown: remote deadline: %v\n", err)
		}
	}

	now := t.now()
	deadline := Resolve(local, remote, now)

	t.mu.Lock()
	t.deadline = deadline
	t.mu.Unlock()

	if !deadline.IsZero() && (local == nil || !local.Equal(deadline)) {
		if err := t.local.Set(ctx, LocalKey, deadline.Format(time.RFC3339Nano)); err != nil {
			log.Printf("err: cooldown: store deadline: %v\n", err)
		}
	}
	if deadline.IsZero() && local != nil {
		t.clearLocal(ctx)
	}

	t.wg.Add(1)
	go t.run()

	return nil
}

// Close stops the ticker and waits for pending remote writes.
func (t *Timer) Close() {
	t.stopped.Do(func() { close(t.stop) })
	t.wg.Wait()
}

// StartCooldown begins a new cooldown now. The local copy is written
// before returning; the remote copy is written in the background.
func (t *Timer) StartCooldown(ctx context.Context) error {
	deadline := t.now().Add(t.duration)

	t.mu.Lock()
	if err := t.local.Set(ctx, LocalKey, deadline.Format(time.RFC3339Nano)); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("local.Set: %w", err)
	}
	t.deadline = deadline
	t.mu.Unlock()

	t.writeRemote(&deadline)

	return nil
}

// Reset ends any cooldown, locally and remotely.
func (t *Timer) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.deadline = time.Time{}
	err := t.local.Delete(ctx, LocalKey)
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("local.Delete: %w", err)
	}

	t.writeRemote(nil)

	return nil
}

// Claim starts a cooldown, or fails with ErrCoolingDown if one is active.
func (t *Timer) Claim(ctx context.Context) error {
	if s := t.State(); !s.CanClaim {
		return fmt.Errorf("%w: %s left", ErrCoolingDown, s.RemainingTime)
	}
	return t.StartCooldown(ctx)
}

func (t *Timer) State() State {
	t.mu.Lock()
	deadline := t.deadline
	t.mu.Unlock()

	var remaining time.Duration
	if !deadline.IsZero() {
		remaining = deadline.Sub(t.now())
	}
	if remaining < 0 {
		remaining = 0
	}

	return State{
		CanClaim:      remaining == 0,
		Remaining:     remaining,
		RemainingTime: FormatTime(remaining),
	}
}

func (t *Timer) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.expire()
		}
	}
}

// expire clears a passed deadline. The local copy is deleted under mu so
// a cooldown started meanwhile keeps its stored deadline.
func (t *Timer) expire() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.deadline.IsZero() || t.now().Before(t.deadline) {
		return
	}

	t.deadline = time.Time{}
	t.clearLocal(context.Background())
}

func (t *Timer) loadLocal(ctx context.Context) (*time.Time, error) {
	v, ok, err := t.local.Get(ctx, LocalKey)
	if err != nil {
		return nil, fmt.Errorf("local.Get: %w", err)
	}
	if !ok {
		return nil, nil
	}

	deadline, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		log.Printf("err: cooldown: bad local deadline %q: %v\n", v, err)
		t.clearLocal(ctx)
		return nil, nil
	}

	return &deadline, nil
}

func (t *Timer) clearLocal(ctx context.Context) {
	if err := t.local.Delete(ctx, LocalKey); err != nil {
		log.Printf("err: cooldown: clear local deadline: %v\n", err)
	}
}

func (t *Timer) writeRemote(deadline *time.Time) {
	if t.remote == nil {
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
		defer cancel()

		if err := t.remote.SetNextClaimTime(ctx, deadline); err != nil {
			log.Printf("err: cooldown: remote deadline write: %v\n", err)
		}
	}()
}

// Resolve returns the effective deadline: the later of the copies that
// are still in the future, or the zero time when neither is.
func Resolve(local, remote *time.Time, now time.Time) time.Time {
	var deadline time.Time
	for _, c := range []*time.Time{local, remote} {
		if c == nil || !c.After(now) {
			continue
		}
		if c.After(deadline) {
			deadline = *c
		}
	}
	return deadline
}

// FormatTime renders d as HH:MM:SS, truncated to the second.
func FormatTime(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}

	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}
