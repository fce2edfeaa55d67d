package telemetry

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

type recordingHook struct {
	events []Event
}

func (r *recordingHook) Handle(e Event) {
	r.events = append(r.events, e)
}

func TestFanoutInvokesEveryHookInOrder(t *testing.T) {
	var a, b recordingHook
	f := NewFanout(&a, &b)

	e := Event{Kind: StateChanged, ContainerID: "box1"}
	f.Emit(e)

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both hooks to receive one event, got %d and %d", len(a.events), len(b.events))
	}
	if a.events[0].ContainerID != "box1" || b.events[0].ContainerID != "box1" {
		t.Errorf("hooks did not receive the emitted event")
	}
}

func TestFanoutWithNoHooksDoesNothing(t *testing.T) {
	f := NewFanout()
	f.Emit(Event{Kind: QuotaAdjusted})
}

func TestNoopDiscardsEvents(t *testing.T) {
	var n Noop
	n.Emit(Event{Kind: OOMKilled})
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		StateChanged:  "state_changed",
		QuotaAdjusted: "quota_adjusted",
		OOMKilled:     "oom_killed",
		Throttled:     "throttled",
		PSIEvent:      "psi_event",
		Kind(99):      "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestLogHookWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	hook := NewLogHook(logger)

	hook.Handle(Event{Kind: Throttled, ContainerID: "box1", WasThrottle: true})

	out := buf.String()
	if !strings.Contains(out, "container_id=box1") {
		t.Errorf("log output missing container_id field: %s", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("Throttled event logged below WARN: %s", out)
	}
}

func TestLogHookUsesInfoForStateChanged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	hook := NewLogHook(logger)

	hook.Handle(Event{Kind: StateChanged, ContainerID: "box1"})

	if strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("StateChanged event logged at WARN, want INFO: %s", buf.String())
	}
}
