// Package wsio provides a websocket-backed IOProcessor: external sends with
// a non-local target are written to every connected client, and messages
// received from clients are delivered into the runtime's external queue via
// the configured deliver callback. It is optional; a Runtime only uses it
// when the host wires one in with scjson.WithIOProcessor.
package wsio

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	scjson "github.com/agentflare-ai/scjson-go"
)

var _ scjson.IOProcessor = (*Processor)(nil)

// wireEvent is the JSON shape exchanged with clients, matching the event
// stream file format.
type wireEvent struct {
	Event  string `json:"event"`
	Data   any    `json:"data,omitempty"`
	SendID string `json:"sendid,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// Processor is a listening websocket endpoint attached to one runtime.
type Processor struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	deliver  func(name string, data any)

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// Listen starts a websocket endpoint on addr ("127.0.0.1:0" picks a free
// port). Inbound client messages are passed to deliver; deliver is called
// from the connection's read goroutine, so hosts that drive a runtime must
// serialize delivery themselves (Runtime.Enqueue is not safe for concurrent
// use with a running Microstep loop).
func Listen(addr string, deliver func(name string, data any)) (*Processor, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	p := &Processor{
		listener: ln,
		deliver:  deliver,
		conns:    make(map[*websocket.Conn]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", p.serveWS)
	p.server = &http.Server{Handler: mux}
	go func() {
		if err := p.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Debug("wsio server stopped", "err", err)
		}
	}()
	return p, nil
}

func (p *Processor) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("wsio upgrade failed", "err", err)
		return
	}
	p.mu.Lock()
	p.conns[conn] = true
	p.mu.Unlock()

	go p.readLoop(conn)
}

func (p *Processor) readLoop(conn *websocket.Conn) {
	defer func() {
		p.mu.Lock()
		delete(p.conns, conn)
		p.mu.Unlock()
		conn.Close()
	}()
	for {
		var evt wireEvent
		if err := conn.ReadJSON(&evt); err != nil {
			return
		}
		if evt.Event == "" {
			continue
		}
		if p.deliver != nil {
			p.deliver(evt.Event, evt.Data)
		}
	}
}

// Handle writes an outbound event to every connected client.
func (p *Processor) Handle(_ context.Context, event *scjson.Event) error {
	msg := wireEvent{Event: event.Name, Data: event.Data, SendID: event.SendID, Origin: event.Origin}
	p.mu.Lock()
	defer p.mu.Unlock()
	for conn := range p.conns {
		if err := conn.WriteJSON(msg); err != nil {
			slog.Debug("wsio write failed", "err", err)
			delete(p.conns, conn)
			conn.Close()
		}
	}
	return nil
}

// Location returns the endpoint's ws:// URI.
func (p *Processor) Location(_ context.Context) (string, error) {
	return fmt.Sprintf("ws://%s/", p.listener.Addr()), nil
}

// Type identifies this processor in send type resolution.
func (p *Processor) Type() string { return "ws" }

// Shutdown closes every client connection and stops the listener.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	for conn := range p.conns {
		conn.Close()
		delete(p.conns, conn)
	}
	p.mu.Unlock()
	return p.server.Shutdown(ctx)
}
