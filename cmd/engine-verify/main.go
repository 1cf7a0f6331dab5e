// Command engine-verify runs a conformance chart to completion and reports
// the W3C-style outcome: a chart passes when its final configuration
// contains a state named "pass" and fails on "fail" (or on never reaching
// either).
//
// Usage:
//
//	engine-verify -I chart.scjson [--xml] [--advance-time N]
//
// Exit codes: 0 pass; 1 fail; 2 usage or load error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	scjson "github.com/agentflare-ai/scjson-go"
	"github.com/agentflare-ai/scjson-go/document"
	"github.com/agentflare-ai/scjson-go/validator"
)

func main() {
	var (
		input       = flag.String("I", "", "chart file (SCJSON by default, SCXML with --xml)")
		xml         = flag.Bool("xml", false, "treat the chart file as SCXML")
		advanceTime = flag.Float64("advance-time", 0, "advance the virtual clock by N seconds after initial entry")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "engine-verify: -I <chart> is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	rt, err := load(ctx, *input, *xml)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine-verify: %v\n", err)
		os.Exit(2)
	}

	if _, err := rt.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "engine-verify: %v\n", err)
		os.Exit(2)
	}
	if err := drain(ctx, rt); err != nil {
		fmt.Fprintf(os.Stderr, "engine-verify: %v\n", err)
		os.Exit(2)
	}
	if *advanceTime > 0 {
		rt.AdvanceTime(ctx, scjson.SecondsToMicro(*advanceTime))
		if err := drain(ctx, rt); err != nil {
			fmt.Fprintf(os.Stderr, "engine-verify: %v\n", err)
			os.Exit(2)
		}
	}

	switch outcome(rt) {
	case "pass":
		fmt.Printf("PASS: %s\n", *input)
	case "fail":
		fmt.Printf("FAIL: %s\n", *input)
		os.Exit(1)
	default:
		fmt.Printf("FAIL: %s (no pass/fail state reached; configuration %v)\n", *input, rt.Configuration())
		os.Exit(1)
	}
}

func load(ctx context.Context, path string, xml bool) (*scjson.Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v := validator.New(validator.Config{SourceName: path})
	var result *validator.Result
	var doc *document.Document
	if xml {
		result, doc, err = v.ValidateXML(ctx, string(data))
	} else {
		result, doc, err = v.ValidateJSON(ctx, string(data))
	}
	if err != nil {
		return nil, err
	}
	if result.HasErrors() {
		_ = validator.WriteText(os.Stderr, result)
		return nil, fmt.Errorf("%s failed validation", path)
	}
	return scjson.NewRuntime(doc)
}

func drain(ctx context.Context, rt *scjson.Runtime) error {
	for {
		_, ok, err := rt.Microstep(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

func outcome(rt *scjson.Runtime) string {
	for _, id := range rt.Configuration() {
		switch id {
		case "pass":
			return "pass"
		case "fail":
			return "fail"
		}
	}
	return ""
}
