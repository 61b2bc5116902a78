package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/voucher/internal/config"
	"github.com/dujiao-next/voucher/internal/queue"

	"github.com/hibiken/asynq"
)

func TestNewServiceRequiresQueue(t *testing.T) {
	container, _ := setupWorkerContainer(t)
	if _, err := NewService(&config.QueueConfig{}, NewConsumer(container)); err == nil {
		t.Fatalf("expected error when queue disabled")
	}
	if _, err := NewService(&config.QueueConfig{Enabled: true}, nil); err == nil {
		t.Fatalf("expected error when consumer missing")
	}
}

func TestServiceRoutesVoucherTasks(t *testing.T) {
	container, _ := setupWorkerContainer(t)
	svc, err := NewService(&config.QueueConfig{Enabled: true, Host: "127.0.0.1", Port: 1}, NewConsumer(container))
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	if svc.Name() != "voucher-worker" {
		t.Fatalf("unexpected name: %s", svc.Name())
	}
	types := svc.TaskTypes()
	if len(types) != 2 {
		t.Fatalf("unexpected task types: %v", types)
	}
	for _, taskType := range types {
		_, pattern := svc.mux.Handler(asynq.NewTask(taskType, nil))
		if pattern != taskType {
			t.Fatalf("task %s not routed, got pattern %q", taskType, pattern)
		}
	}
	if _, pattern := svc.mux.Handler(asynq.NewTask("order:unknown", nil)); pattern != "" {
		t.Fatalf("unexpected route for unknown task: %q", pattern)
	}
	if svc.queues[queue.DefaultQueue] != 1 {
		t.Fatalf("unexpected queues: %+v", svc.queues)
	}

	// 修改返回的切片不影响已注册列表
	types[0] = "mutated"
	if svc.TaskTypes()[0] != queue.TaskVoucherReservationExpire {
		t.Fatalf("task types should be copied")
	}
}

func TestServiceStartFailsWhenQueueUnreachable(t *testing.T) {
	container, _ := setupWorkerContainer(t)
	svc, err := NewService(&config.QueueConfig{Enabled: true, Host: "127.0.0.1", Port: 1}, NewConsumer(container))
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	err = svc.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ping queue") {
		t.Fatalf("expected ping error, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("stop of idle worker should succeed, got %v", err)
	}

	var nilService *Service
	if err := nilService.Start(context.Background()); err == nil {
		t.Fatalf("expected error for nil service")
	}
	if err := nilService.Stop(ctx); err != nil {
		t.Fatalf("nil service stop should be a no-op, got %v", err)
	}
}
