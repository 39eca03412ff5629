package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubscribeAndPublish(t *testing.T) {
	broker := NewBroker[string]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)

	broker.Publish(IssueCreated, "hello")

	select {
	case evt := <-ch:
		if evt.Type != IssueCreated {
			t.Errorf("expected event type IssueCreated, got %s", evt.Type)
		}
		if evt.Payload != "hello" {
			t.Errorf("expected payload 'hello', got %q", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	broker := NewBroker[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)

	broker.Publish(IssueUpdated, 42)

	for _, ch := range []<-chan Event[int]{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Payload != 42 {
				t.Errorf("expected payload 42, got %d", evt.Payload)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestContextCancellation(t *testing.T) {
	broker := NewBroker[string]()
	ctx, cancel := context.WithCancel(context.Background())

	ch := broker.Subscribe(ctx)
	cancel()

	// Wait for cleanup goroutine to run
	time.Sleep(50 * time.Millisecond)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	broker.mu.RLock()
	count := len(broker.subs)
	broker.mu.RUnlock()

	if count != 0 {
		t.Errorf("expected 0 subscribers after cancel, got %d", count)
	}
}

func TestSlowSubscriberDrop(t *testing.T) {
	broker := NewBroker[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)

	for i := 0; i < subscriberBufferSize+10; i++ {
		broker.Publish(IssueCreated, i)
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:
	if count != subscriberBufferSize {
		t.Errorf("expected %d events (buffer size), got %d", subscriberBufferSize, count)
	}
}

func TestConcurrentPublish(t *testing.T) {
	broker := NewBroker[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)

	var wg sync.WaitGroup
	numPublishers := 10
	eventsPerPublisher := 5

	for i := 0; i < numPublishers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerPublisher; j++ {
				broker.Publish(IssueCreated, id*100+j)
			}
		}(i)
	}

	wg.Wait()

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:
	if count == 0 {
		t.Error("expected to receive at least some events")
	}
	if count > numPublishers*eventsPerPublisher {
		t.Errorf("received more events than published: %d", count)
	}
}
