package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunScenarioDeEscalates(t *testing.T) {
	p, cleanup, err := buildPipeline(context.Background(), false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer cleanup()

	var out bytes.Buffer
	rep, err := runScenario(context.Background(), scenario{
		Initial:  0.9,
		Drift:    -0.04,
		Seed:     7,
		Readings: 30,
		Step:     time.Second,
		Messages: []string{"hello", "still here"},
	}, p, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !rep.Ended {
		t.Fatalf("session should end")
	}
	if !rep.Session.Successful {
		t.Fatalf("strong negative drift should de-escalate, readings=%v", rep.Session.Readings)
	}
	if rep.Session.MintReceipt == "" {
		t.Fatalf("offline mode should mint a simulated receipt")
	}
	if len(rep.Transitions) == 0 {
		t.Fatalf("expected at least one level transition")
	}
	if got := strings.Count(out.String(), "anchor: "); got != 2 {
		t.Fatalf("expected 2 replies in transcript, got %d:\n%s", got, out.String())
	}

	var summary bytes.Buffer
	if err := printSummary(&summary, rep, time.Now()); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(summary.String(), rep.Session.ID) {
		t.Fatalf("summary should include the session id:\n%s", summary.String())
	}
}

func TestRunScenarioRejectsEmpty(t *testing.T) {
	p, cleanup, _ := buildPipeline(context.Background(), false)
	defer cleanup()
	if _, err := runScenario(context.Background(), scenario{Readings: 0}, p, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for zero readings")
	}
}

func TestVitalsCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"vitals", "--pulse", "100", "--breathing", "27"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "level=spiking") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}
