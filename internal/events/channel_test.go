package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceTopic(t *testing.T) {
	assert.Equal(t, "tv/dev-1/commands", DeviceTopic("dev-1"))
}

func TestDispatchDecodesTypedEvents(t *testing.T) {
	ch := &Channel{subs: make(map[string][]subscription)}

	var got []Event
	ch.subs["tv/dev-1/commands"] = []subscription{
		{id: 1, handler: func(ev Event) { got = append(got, ev) }},
	}

	ch.dispatch("tv/dev-1/commands", []byte(`{"type":"schedule_update","schedule_id":7}`))
	require.Len(t, got, 1)
	assert.Equal(t, TypeScheduleUpdate, got[0].Type)
	assert.JSONEq(t, `{"type":"schedule_update","schedule_id":7}`, string(got[0].Payload))
}

func TestDispatchDropsMalformedEvents(t *testing.T) {
	ch := &Channel{subs: make(map[string][]subscription)}

	var fired int
	ch.subs["t"] = []subscription{{id: 1, handler: func(Event) { fired++ }}}

	ch.dispatch("t", []byte(`not json`))
	ch.dispatch("t", []byte(`{"no_type":true}`))
	assert.Zero(t, fired)
}

func TestRemoveHandler(t *testing.T) {
	ch := &Channel{subs: make(map[string][]subscription)}
	ch.subs["t"] = []subscription{
		{id: 1, handler: func(Event) {}},
		{id: 2, handler: func(Event) {}},
	}

	assert.False(t, ch.removeHandler("t", 1), "one handler remains")
	assert.True(t, ch.removeHandler("t", 2), "last handler gone, topic should unsubscribe")
	_, ok := ch.subs["t"]
	assert.False(t, ok)
}
