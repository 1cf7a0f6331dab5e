// Package env implements an environment-variable namespace handler:
// <env:get> reads an OS environment variable into the data model,
// <env:set> writes one from a literal or expression.
package env

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentflare-ai/scjson-go"
	"github.com/agentflare-ai/scjson-go/document"
)

const NamespaceURI = "github.com/agentflare-ai/scjson-go/env"

var tracer = otel.Tracer("scjson/ext/env")

// Namespace is a stateless NamespaceHandler; one instance may be registered
// against any number of runtimes.
type Namespace struct{}

func (Namespace) URI() string { return NamespaceURI }

func (Namespace) Handle(ctx context.Context, rt *scjson.Runtime, el document.Custom) (bool, error) {
	switch el.Tag {
	case "get":
		return true, execGet(ctx, rt, el)
	case "set":
		return true, execSet(ctx, rt, el)
	default:
		return false, nil
	}
}

func execGet(ctx context.Context, rt *scjson.Runtime, el document.Custom) error {
	_, span := tracer.Start(ctx, "env.get")
	defer span.End()

	name := el.Attrs["name"]
	if name == "" {
		if nameExpr := el.Attrs["nameexpr"]; nameExpr != "" {
			v, err := rt.EvalGlobal(ctx, nameExpr)
			if err != nil {
				return fmt.Errorf("env:get nameexpr: %w", err)
			}
			name = fmt.Sprint(v)
		}
	}
	if name == "" {
		return fmt.Errorf("env:get requires name or nameexpr attribute")
	}
	span.SetAttributes(attribute.String("env.name", name))

	loc := el.Attrs["location"]
	if loc == "" {
		return fmt.Errorf("env:get requires location attribute")
	}

	value, exists := os.LookupEnv(name)
	if !exists {
		value = el.Attrs["default"]
	}
	span.SetAttributes(attribute.Bool("env.exists", exists))

	return rt.AssignGlobal(loc, value)
}

func execSet(ctx context.Context, rt *scjson.Runtime, el document.Custom) error {
	_, span := tracer.Start(ctx, "env.set")
	defer span.End()

	name := el.Attrs["name"]
	if name == "" {
		if nameExpr := el.Attrs["nameexpr"]; nameExpr != "" {
			v, err := rt.EvalGlobal(ctx, nameExpr)
			if err != nil {
				return fmt.Errorf("env:set nameexpr: %w", err)
			}
			name = fmt.Sprint(v)
		}
	}
	if name == "" {
		return fmt.Errorf("env:set requires name or nameexpr attribute")
	}
	span.SetAttributes(attribute.String("env.name", name))

	valueAttr, hasValue := el.Attrs["value"]
	exprAttr, hasExpr := el.Attrs["expr"]
	if hasValue && hasExpr {
		return fmt.Errorf("env:set cannot have both value and expr attributes")
	}

	var value string
	switch {
	case hasExpr:
		v, err := rt.EvalGlobal(ctx, exprAttr)
		if err != nil {
			return fmt.Errorf("env:set expr: %w", err)
		}
		value = fmt.Sprint(v)
	case hasValue:
		value = valueAttr
	default:
		return fmt.Errorf("env:set requires value or expr attribute")
	}

	if err := os.Setenv(name, value); err != nil {
		return fmt.Errorf("env:set: %w", err)
	}
	span.SetAttributes(attribute.String("env.value", value))
	return nil
}

var _ scjson.NamespaceHandler = Namespace{}
