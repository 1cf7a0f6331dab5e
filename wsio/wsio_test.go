package wsio

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scjson "github.com/agentflare-ai/scjson-go"
)

func TestRoundTrip(t *testing.T) {
	received := make(chan wireEvent, 1)
	p, err := Listen("127.0.0.1:0", func(name string, data any) {
		received <- wireEvent{Event: name, Data: data}
	})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	loc, err := p.Location(context.Background())
	require.NoError(t, err)
	assert.Contains(t, loc, "ws://")

	conn, _, err := websocket.DefaultDialer.Dial(loc, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Inbound: client -> deliver callback.
	require.NoError(t, conn.WriteJSON(wireEvent{Event: "knock", Data: "hello"}))
	select {
	case evt := <-received:
		assert.Equal(t, "knock", evt.Event)
		assert.Equal(t, "hello", evt.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound event never delivered")
	}

	// Outbound: Handle -> client.
	require.NoError(t, p.Handle(context.Background(), &scjson.Event{Name: "pong", Data: map[string]any{"n": 1.0}}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out wireEvent
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "pong", out.Event)
}

func TestTypeAndShutdown(t *testing.T) {
	p, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	assert.Equal(t, "ws", p.Type())
	require.NoError(t, p.Shutdown(context.Background()))
}
