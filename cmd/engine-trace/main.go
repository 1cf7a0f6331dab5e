// Command engine-trace executes a statechart against an event stream and
// writes one normalized JSONL trace record per microstep, suitable for
// cross-engine comparison.
//
// Usage:
//
//	engine-trace -I chart.scjson [-o trace.jsonl] [-e events.jsonl] [--xml]
//	             [--advance-time N] [--leaf-only|--full-states]
//	             [--omit-actions] [--omit-delta] [--omit-transitions]
//
// Exit codes: 0 success; 2 usage or load error.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	scjson "github.com/agentflare-ai/scjson-go"
	"github.com/agentflare-ai/scjson-go/document"
	"github.com/agentflare-ai/scjson-go/trace"
	"github.com/agentflare-ai/scjson-go/validator"
)

func main() {
	var (
		input           = flag.String("I", "", "chart file (SCJSON by default, SCXML with --xml)")
		output          = flag.String("o", "", "trace output file (default stdout)")
		events          = flag.String("e", "", "event stream file (JSONL)")
		xml             = flag.Bool("xml", false, "treat the chart file as SCXML")
		advanceTime     = flag.Float64("advance-time", 0, "advance the virtual clock by N seconds after the stream")
		leafOnly        = flag.Bool("leaf-only", true, "emit leaf states only in configuration lists")
		fullStates      = flag.Bool("full-states", false, "emit every active state, ancestors included")
		omitActions     = flag.Bool("omit-actions", false, "drop actionLog from records")
		omitDelta       = flag.Bool("omit-delta", false, "drop datamodelDelta from records")
		omitTransitions = flag.Bool("omit-transitions", false, "drop firedTransitions from records")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "engine-trace: -I <chart> is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	full := *fullStates || !*leafOnly
	rt, err := loadRuntime(ctx, *input, *xml, full)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine-trace: %v\n", err)
		os.Exit(2)
	}

	var stream []scjson.StreamEntry
	if *events != "" {
		f, err := os.Open(*events)
		if err != nil {
			fmt.Fprintf(os.Stderr, "engine-trace: %v\n", err)
			os.Exit(2)
		}
		stream, err = scjson.ReadEventStream(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "engine-trace: %v\n", err)
			os.Exit(2)
		}
	}

	out := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "engine-trace: %v\n", err)
			os.Exit(2)
		}
		defer f.Close()
		out = f
	}

	w := &recordWriter{
		out:             out,
		omitActions:     *omitActions,
		omitDelta:       *omitDelta,
		omitTransitions: *omitTransitions,
	}

	if err := run(ctx, rt, stream, *advanceTime, w); err != nil {
		fmt.Fprintf(os.Stderr, "engine-trace: %v\n", err)
		os.Exit(2)
	}
}

// loadRuntime reads, validates, and builds the chart. Validation errors are
// load errors: a chart the validator rejects never reaches the engine.
func loadRuntime(ctx context.Context, path string, xml, fullStates bool) (*scjson.Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v := validator.New(validator.Config{SourceName: path})
	result, doc, err := validateSource(ctx, v, string(data), xml)
	if err != nil {
		return nil, err
	}
	if result.HasErrors() {
		_ = validator.WriteText(os.Stderr, result)
		return nil, fmt.Errorf("%s failed validation", path)
	}
	opts := []scjson.RunOption{}
	if fullStates {
		opts = append(opts, scjson.WithFullStates())
	}
	return scjson.NewRuntime(doc, opts...)
}

func validateSource(ctx context.Context, v *validator.Validator, source string, xml bool) (*validator.Result, *document.Document, error) {
	if xml {
		return v.ValidateXML(ctx, source)
	}
	return v.ValidateJSON(ctx, source)
}

// run performs the initial entry, replays the event stream, and drains the
// machine after every delivery, writing one record per microstep.
func run(ctx context.Context, rt *scjson.Runtime, stream []scjson.StreamEntry, advanceTime float64, w *recordWriter) error {
	rec, err := rt.Start(ctx)
	if err != nil {
		return err
	}
	if err := w.write(rec); err != nil {
		return err
	}
	if err := drain(ctx, rt, w); err != nil {
		return err
	}

	for _, entry := range stream {
		if entry.IsAdvance() {
			rt.AdvanceTime(ctx, scjson.SecondsToMicro(entry.Advance))
		} else {
			rt.Enqueue(entry.Event, entry.Data)
		}
		if err := drain(ctx, rt, w); err != nil {
			return err
		}
	}

	if advanceTime > 0 {
		rt.AdvanceTime(ctx, scjson.SecondsToMicro(advanceTime))
		if err := drain(ctx, rt, w); err != nil {
			return err
		}
	}
	return nil
}

func drain(ctx context.Context, rt *scjson.Runtime, w *recordWriter) error {
	for {
		rec, ok, err := rt.Microstep(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if rec != nil {
			if err := w.write(rec); err != nil {
				return err
			}
		}
	}
}

type recordWriter struct {
	out             io.Writer
	omitActions     bool
	omitDelta       bool
	omitTransitions bool
}

func (w *recordWriter) write(rec *trace.Record) error {
	if w.omitActions {
		rec.ActionLog = nil
	}
	if w.omitDelta {
		rec.DatamodelDelta = nil
	}
	if w.omitTransitions {
		rec.FiredTransitions = nil
	}
	line, err := rec.MarshalJSONL()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w.out, "%s\n", line)
	return err
}
