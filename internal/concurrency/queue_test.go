package concurrency

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskQueueBoundsConcurrency(t *testing.T) {
	q := NewTaskQueue(2)
	var active int32
	var maxActive int32
	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			_ = q.Submit(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					cur := atomic.LoadInt32(&maxActive)
					if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	if maxActive > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, got %d", maxActive)
	}
}

func TestTaskQueueCancelBeforeAcquireDropsTask(t *testing.T) {
	q := NewTaskQueue(1)
	_ = q.Submit(context.Background(), func(ctx context.Context) error {
		return nil
	})

	// occupy the single slot
	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = q.Submit(context.Background(), func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := q.Submit(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	close(release)
	if err == nil {
		t.Fatal("expected error from cancelled submit")
	}
	if ran {
		t.Fatal("expected cancelled task to never run")
	}
}

func TestResizeDoesNotPanicConcurrentSubmit(t *testing.T) {
	q := NewTaskQueue(2)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				q.Resize(3)
			}
		}
	}()
	for i := 0; i < 20; i++ {
		_ = q.Submit(context.Background(), func(ctx context.Context) error { return nil })
	}
	close(stop)
}
