package scjson

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayedSendOrdering(t *testing.T) {
	clock := NewVirtualClock()
	q := newEventQueue(clock)

	q.schedule(Event{Name: "late"}, 2000, "s1")
	q.schedule(Event{Name: "early"}, 1000, "s2")
	q.schedule(Event{Name: "tie-a"}, 1500, "s3")
	q.schedule(Event{Name: "tie-b"}, 1500, "s4")

	q.advanceTime(2000)
	var names []string
	for _, e := range q.external {
		names = append(names, e.Name)
	}
	// (due, seq) order: equal due times preserve schedule order.
	assert.Equal(t, []string{"early", "tie-a", "tie-b", "late"}, names)
}

func TestCancelIsIdempotent(t *testing.T) {
	clock := NewVirtualClock()
	q := newEventQueue(clock)

	q.schedule(Event{Name: "t"}, 1000, "k")
	q.cancel("k")
	q.cancel("k")          // second cancel is a no-op
	q.cancel("never-seen") // unknown send-id is a silent no-op

	q.advanceTime(2000)
	assert.Empty(t, q.external)
}

func TestCancelAfterDeliveryIsNoOp(t *testing.T) {
	clock := NewVirtualClock()
	q := newEventQueue(clock)

	q.schedule(Event{Name: "t"}, 100, "k")
	q.advanceTime(100)
	require.Len(t, q.external, 1)
	q.cancel("k")
	assert.Len(t, q.external, 1, "cancel after delivery must not remove the event")
}

func TestInternalPrecedesExternal(t *testing.T) {
	clock := NewVirtualClock()
	q := newEventQueue(clock)

	q.enqueueExternal(Event{Name: "ext"})
	q.enqueueInternal(Event{Name: "int"})

	e, ok := q.nextEvent()
	require.True(t, ok)
	assert.Equal(t, "int", e.Name)
	e, ok = q.nextEvent()
	require.True(t, ok)
	assert.Equal(t, "ext", e.Name)
	_, ok = q.nextEvent()
	assert.False(t, ok)
}

func TestAdvanceTimeZeroFlushesDueSends(t *testing.T) {
	clock := NewVirtualClock()
	q := newEventQueue(clock)

	q.schedule(Event{Name: "now"}, 0, "k")
	require.Empty(t, q.external)
	q.advanceTime(0)
	assert.Len(t, q.external, 1)
}

func TestDelayedSendAndCancellation(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="S">
		<state id="S">
			<onentry><send event="t" delay="100ms" id="k"/></onentry>
			<transition event="cancelKey" target="S2"/>
			<transition event="t" target="tripped"/>
		</state>
		<state id="S2">
			<onentry><cancel sendid="k"/></onentry>
			<transition event="t" target="tripped"/>
		</state>
		<state id="tripped"/>
	</scxml>`)

	deliver(t, rt, "cancelKey", nil)
	rt.AdvanceTime(context.Background(), SecondsToMicro(0.2))
	recs := drainMacrostep(t, rt)

	assert.Equal(t, []string{"S2"}, rt.LeafConfiguration())
	for _, rec := range recs {
		for _, ft := range rec.FiredTransitions {
			assert.NotEqual(t, "t", ft.Event)
		}
	}
}

func TestDelayedSendDeliversWithoutCancellation(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="S">
		<state id="S">
			<onentry><send event="t" delay="100ms"/></onentry>
			<transition event="t" target="tripped"/>
		</state>
		<state id="tripped"/>
	</scxml>`)

	// Not yet due.
	drainMacrostep(t, rt)
	assert.Equal(t, []string{"S"}, rt.LeafConfiguration())

	rt.AdvanceTime(context.Background(), SecondsToMicro(0.1))
	drainMacrostep(t, rt)
	assert.Equal(t, []string{"tripped"}, rt.LeafConfiguration())
}

func TestExitCancelsIDLocationSends(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="S">
		<datamodel><data id="pending" expr="''"/></datamodel>
		<state id="S">
			<onentry><send event="t" delay="100ms" idlocation="pending"/></onentry>
			<transition event="leave" target="U"/>
		</state>
		<state id="U">
			<transition event="t" target="tripped"/>
		</state>
		<state id="tripped"/>
	</scxml>`)

	deliver(t, rt, "leave", nil)
	rt.AdvanceTime(context.Background(), SecondsToMicro(0.2))
	drainMacrostep(t, rt)
	// Exiting S cancelled the send bound through idlocation.
	assert.Equal(t, []string{"U"}, rt.LeafConfiguration())
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		wantUS  int64
		wantErr bool
	}{
		{"100ms", 100_000, false},
		{"1.5s", 1_500_000, false},
		{"0s", 0, false},
		{"5m", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		d, err := parseCSSDuration(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "parseCSSDuration(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "parseCSSDuration(%q)", tt.in)
		assert.Equal(t, tt.wantUS, d.Microseconds(), "parseCSSDuration(%q)", tt.in)
	}
}
