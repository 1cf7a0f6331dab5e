// Package stdin implements a <stdin:read> namespace handler: it reads one
// line from the process's stdin and raises the result as an external event.
// The core itself never blocks on I/O; this is an opt-in extension
// namespace and is allowed to block the calling goroutine until a line arrives or ctx is cancelled.
package stdin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/agentflare-ai/scjson-go"
	"github.com/agentflare-ai/scjson-go/document"
)

const NamespaceURI = "github.com/agentflare-ai/scjson-go/stdin"

var tracer = otel.Tracer("scjson/ext/stdin")

// Namespace holds the shared buffered reader across Handle calls so
// repeated <stdin:read> elements in one process keep reading forward
// instead of each opening their own buffer over os.Stdin.
type Namespace struct {
	mu     sync.Mutex
	reader *bufio.Reader
}

func (n *Namespace) URI() string { return NamespaceURI }

func (n *Namespace) Handle(ctx context.Context, rt *scjson.Runtime, el document.Custom) (bool, error) {
	if el.Tag != "read" {
		return false, nil
	}
	return true, n.execRead(ctx, rt, el)
}

func (n *Namespace) execRead(ctx context.Context, rt *scjson.Runtime, el document.Custom) error {
	_, span := tracer.Start(ctx, "stdin.read")
	defer span.End()

	eventName := el.Attrs["event"]
	if eventName == "" {
		eventName = "stdin.read"
	}

	if prompt := el.Attrs["prompt"]; prompt != "" {
		if promptExpr := el.Attrs["promptexpr"]; promptExpr != "" {
			v, err := rt.EvalGlobal(ctx, promptExpr)
			if err != nil {
				return fmt.Errorf("stdin:read promptexpr: %w", err)
			}
			prompt = fmt.Sprint(v)
		}
		fmt.Fprint(os.Stderr, prompt)
	}

	n.mu.Lock()
	if n.reader == nil {
		n.reader = bufio.NewReader(os.Stdin)
	}
	reader := n.reader
	n.mu.Unlock()

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := reader.ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	}()

	select {
	case <-ctx.Done():
		rt.Enqueue("error.execution", map[string]any{"message": "stdin read cancelled", "cause": ctx.Err().Error()})
		return ctx.Err()
	case err := <-errCh:
		if err == io.EOF {
			rt.Enqueue(eventName, nil)
			return nil
		}
		rt.Enqueue("error.execution", map[string]any{"message": "failed to read from stdin", "cause": err.Error()})
		return err
	case input := <-resultCh:
		rt.Enqueue(eventName, input)
		return nil
	}
}

var _ scjson.NamespaceHandler = (*Namespace)(nil)
