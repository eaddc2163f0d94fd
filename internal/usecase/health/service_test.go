package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// blockingPinger waits for the context to end.
type blockingPinger struct{}

func (blockingPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockPinger{}, &mockPinger{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks[ComponentEngine] != CheckOK {
		t.Errorf("expected engine %q, got %q", CheckOK, r.Checks[ComponentEngine])
	}
	if r.Checks[ComponentEvents] != CheckOK {
		t.Errorf("expected events %q, got %q", CheckOK, r.Checks[ComponentEvents])
	}
}

func TestCheck_EngineError(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("conn refused")}, &mockPinger{})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks[ComponentEngine] != CheckError {
		t.Errorf("expected engine %q, got %q", CheckError, r.Checks[ComponentEngine])
	}
	if r.Checks[ComponentEvents] != CheckOK {
		t.Errorf("expected events %q, got %q", CheckOK, r.Checks[ComponentEvents])
	}
}

func TestCheck_EventsError(t *testing.T) {
	svc := New(&mockPinger{}, &mockPinger{err: errors.New("timeout")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks[ComponentEvents] != CheckError {
		t.Errorf("expected events %q, got %q", CheckError, r.Checks[ComponentEvents])
	}
}

func TestCheck_NoEvents(t *testing.T) {
	svc := New(&mockPinger{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks[ComponentEvents]; ok {
		t.Error("events check should be absent when no sink is configured")
	}
}

func TestCheck_PingTimeout(t *testing.T) {
	svc := New(blockingPinger{}, nil)
	svc.timeout = 10 * time.Millisecond

	r := svc.Check(context.Background())
	if r.Checks[ComponentEngine] != CheckError {
		t.Errorf("expected engine %q, got %q", CheckError, r.Checks[ComponentEngine])
	}
}
