package progress

import (
	"testing"
	"time"

	"briefly/internal/core"
)

func TestSubscribeReceivesEventsInOrder(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe("job-1")
	defer unsubscribe()

	b.Publish(ProgressEvent{JobID: "job-1", Phase: core.PhaseFetching, Message: "1/3 fetched"})
	b.Publish(ProgressEvent{JobID: "job-1", Phase: core.PhaseFetching, Message: "2/3 fetched"})
	b.Publish(TerminalEvent{JobID: "job-1", State: core.JobCompleted})

	first := (<-ch).(ProgressEvent)
	second := (<-ch).(ProgressEvent)
	third := (<-ch).(TerminalEvent)

	if first.Message != "1/3 fetched" || second.Message != "2/3 fetched" {
		t.Errorf("expected ordered delivery, got %q then %q", first.Message, second.Message)
	}
	if third.State != core.JobCompleted {
		t.Errorf("expected terminal event with JobCompleted, got %s", third.State)
	}
}

func TestPublishDoesNotCrossDeliverBetweenJobs(t *testing.T) {
	b := NewBus()
	chA, unsubA := b.Subscribe("job-a")
	defer unsubA()
	chB, unsubB := b.Subscribe("job-b")
	defer unsubB()

	b.Publish(ProgressEvent{JobID: "job-a", Message: "a-event"})

	select {
	case evt := <-chA:
		if evt.EventJobID() != "job-a" {
			t.Errorf("expected job-a event, got %s", evt.EventJobID())
		}
	case <-time.After(time.Second):
		t.Fatal("expected job-a subscriber to receive its event")
	}

	select {
	case evt := <-chB:
		t.Fatalf("did not expect job-b subscriber to receive job-a's event, got %+v", evt)
	default:
	}
}

func TestCancelTokenCancelledIsIdempotent(t *testing.T) {
	b := NewBus()
	tok := b.TokenFor("job-1")
	if tok.Cancelled() {
		t.Fatal("expected fresh token to not be cancelled")
	}

	b.Cancel("job-1")
	b.Cancel("job-1") // must not panic on double cancel

	if !tok.Cancelled() {
		t.Error("expected token to report cancelled after Cancel")
	}
	select {
	case <-tok.Done():
	default:
		t.Error("expected Done channel to be closed after Cancel")
	}
}

func TestReleaseClosesSubscriberChannels(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe("job-1")
	b.Release("job-1")

	_, ok := <-ch
	if ok {
		t.Error("expected subscriber channel to be closed after Release")
	}
}

func TestMultipleSubscribersEachReceiveEvent(t *testing.T) {
	b := NewBus()
	ch1, unsub1 := b.Subscribe("job-1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("job-1")
	defer unsub2()

	b.Publish(ProgressEvent{JobID: "job-1", Message: "hello"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.(ProgressEvent).Message != "hello" {
				t.Errorf("unexpected message: %+v", evt)
			}
		case <-time.After(time.Second):
			t.Fatal("expected both subscribers to receive the published event")
		}
	}
}
