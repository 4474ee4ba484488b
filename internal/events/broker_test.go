package events_test

import (
	"testing"

	"github.com/seantiz/showcase/internal/events"
)

func ev(typ string) events.Event {
	return events.Event{Type: typ, Engine: "engine", ProcessInstanceID: "pi-1"}
}

func TestBrokerSingleSubscriber(t *testing.T) {
	b := events.NewBroker()
	ch, unsub := b.Subscribe("engine")
	defer unsub()

	types := []string{events.ProcessInstanceStarted, events.ActivityStarted, events.TaskCreated}
	for _, typ := range types {
		b.Publish("engine", ev(typ))
	}
	b.Close("engine")

	var got []string
	for e := range ch {
		got = append(got, e.Type)
	}

	if len(got) != len(types) {
		t.Fatalf("got %d events, want %d", len(got), len(types))
	}
	for i, typ := range got {
		if typ != types[i] {
			t.Errorf("event[%d] = %q, want %q", i, typ, types[i])
		}
	}
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := events.NewBroker()
	ch1, unsub1 := b.Subscribe("engine")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("engine")
	defer unsub2()

	b.Publish("engine", ev(events.JobCreated))
	b.Close("engine")

	for i, ch := range []<-chan events.Event{ch1, ch2} {
		var got []events.Event
		for e := range ch {
			got = append(got, e)
		}
		if len(got) != 1 || got[0].Type != events.JobCreated {
			t.Errorf("subscriber %d got %v", i+1, got)
		}
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := events.NewBroker()
	ch, unsub := b.Subscribe("engine")
	defer unsub()

	b.Publish("other", ev(events.JobFailed))

	select {
	case e := <-ch:
		t.Errorf("received event from another topic: %+v", e)
	default:
	}
}

func TestBrokerLateSubscriberGetsClosed(t *testing.T) {
	b := events.NewBroker()
	b.Publish("engine", ev(events.ActivityEnded))
	b.Close("engine")

	ch, unsub := b.Subscribe("engine")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("late subscriber should get a closed channel")
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := events.NewBroker()
	ch, unsub := b.Subscribe("engine")
	unsub()

	b.Publish("engine", ev(events.TaskCompleted))
	b.Close("engine")

	select {
	case e, ok := <-ch:
		if ok {
			t.Errorf("got unexpected event %+v after unsubscribe", e)
		}
	default:
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := events.NewBroker()
	ch, unsub := b.Subscribe("engine")
	defer unsub()

	for i := 0; i < 200; i++ {
		b.Publish("engine", ev(events.ActivityStarted))
	}
	b.Close("engine")

	n := 0
	for range ch {
		n++
	}
	if n == 0 || n >= 200 {
		t.Errorf("received %d events, want a bounded non-zero count", n)
	}
}

func TestBrokerPublishToUnknownTopicIsNoop(t *testing.T) {
	b := events.NewBroker()
	b.Publish("nonexistent", ev(events.JobCreated))
	b.Close("nonexistent")
}

func TestBrokerSubscribeByType(t *testing.T) {
	b := events.NewBroker()
	tasks, unsubTasks := b.Subscribe("engine", events.TaskCreated, events.TaskCompleted)
	defer unsubTasks()
	all, unsubAll := b.Subscribe("engine")
	defer unsubAll()

	published := []string{
		events.ProcessInstanceStarted,
		events.TaskCreated,
		events.ActivityEnded,
		events.TaskCompleted,
		events.ProcessInstanceEnded,
	}
	for _, typ := range published {
		b.Publish("engine", ev(typ))
	}
	b.Close("engine")

	var gotTasks []string
	for e := range tasks {
		gotTasks = append(gotTasks, e.Type)
	}
	want := []string{events.TaskCreated, events.TaskCompleted}
	if len(gotTasks) != len(want) || gotTasks[0] != want[0] || gotTasks[1] != want[1] {
		t.Errorf("filtered subscriber got %v, want %v", gotTasks, want)
	}

	n := 0
	for range all {
		n++
	}
	if n != len(published) {
		t.Errorf("unfiltered subscriber got %d events, want %d", n, len(published))
	}
}
