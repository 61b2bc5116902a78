package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeService struct {
	name     string
	startErr error
	block    bool

	mu      sync.Mutex
	stopped bool
	order   *[]string
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return nil
	}
	return s.startErr
}

func (s *fakeService) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	return nil
}

func TestRunnerStopsAllWhenOneFails(t *testing.T) {
	var order []string
	failing := &fakeService{name: "worker", startErr: errors.New("boom"), order: &order}
	blocking := &fakeService{name: "voucher_sweeper", block: true, order: &order}

	err := NewRunner(failing, blocking).Run(context.Background(), time.Second, nil)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected start error, got %v", err)
	}
	if !failing.stopped || !blocking.stopped {
		t.Fatalf("expected all services stopped")
	}
	if len(order) != 2 || order[0] != "voucher_sweeper" || order[1] != "worker" {
		t.Fatalf("expected reverse stop order, got %v", order)
	}
}

func TestRunnerCancelReturnsNil(t *testing.T) {
	svc := &fakeService{name: "voucher_sweeper", block: true}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewRunner(svc).Run(ctx, time.Second, nil)
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
}

func TestRunnerWithoutServices(t *testing.T) {
	if err := NewRunner().Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("expected error for empty runner")
	}
}
