package cooldown

import (
	"context"
	"sync"
	"time"
)

type mockLocal struct {
	mu     sync.Mutex
	values map[string]string
	setErr error

	// onDelete, when set, runs before a delete is applied.
	onDelete func()
}

func newMockLocal() *mockLocal {
	return &mockLocal{values: map[string]string{}}
}

func (m *mockLocal) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockLocal) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *mockLocal) Delete(ctx context.Context, key string) error {
	if m.onDelete != nil {
		m.onDelete()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *mockLocal) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

type mockRemote struct {
	mu       sync.Mutex
	deadline *time.Time
	writes   int
	getErr   error
	setErr   error
}

func (m *mockRemote) GetNextClaimTime(ctx context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.deadline, nil
}

func (m *mockRemote) SetNextClaimTime(ctx context.Context, t *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.setErr != nil {
		return m.setErr
	}
	m.deadline = t
	return nil
}

func (m *mockRemote) get() (*time.Time, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline, m.writes
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock {
	return &clock{now: t}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
