package core

import (
	"context"
	"errors"
	"testing"

	"github.com/lexhelper/counsel/config"
)

func newTestManager(t *testing.T, invoker Invoker, maxIterations int) *Manager {
	t.Helper()
	cfg := &config.Config{Research: config.ResearchConfig{
		MaxIterations: maxIterations,
		VerifierMode:  "monolithic",
	}}
	return NewManager(cfg, invoker, nil, nil)
}

func TestRunFinalizesImmediatelyOnGoodQuality(t *testing.T) {
	stub := newStubInvoker().
		respond(RolePlanner, planJSON).
		respond(RoleSearch, "summary one").
		respond(RoleWriter, reportJSON).
		respond(RoleVerifier, goodVerificationJSON)

	result, err := newTestManager(t, stub, 3).Run(context.Background(), "SNAP work requirements")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.IterationCount != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.IterationCount)
	}
	if len(result.IterationHistory) != 1 || result.IterationHistory[0].Action != ActionFinalized {
		t.Fatalf("unexpected history: %+v", result.IterationHistory)
	}
	if result.FinalQuality != QualityGood {
		t.Fatalf("expected good quality, got %s", result.FinalQuality)
	}
	if got := stub.callCount(RoleRevision); got != 0 {
		t.Fatalf("expected no revisions, got %d", got)
	}
}

func TestRunStopsAtIterationBudget(t *testing.T) {
	// Verifier flags a critical issue every time; the budget must still
	// terminate the loop with a verification of the final draft.
	stub := newStubInvoker().
		respond(RolePlanner, planJSON).
		respond(RoleSearch, "summary one").
		respond(RoleWriter, reportJSON).
		respond(RoleVerifier, criticalVerificationJSON).
		respond(RoleRevision, revisedReportJSON)

	result, err := newTestManager(t, stub, 3).Run(context.Background(), "SNAP work requirements")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.IterationCount != 3 {
		t.Fatalf("expected 3 iterations, got %d", result.IterationCount)
	}
	if got := stub.callCount(RoleRevision); got != 2 {
		t.Fatalf("expected 2 revisions, got %d", got)
	}
	if got := stub.callCount(RoleVerifier); got != 3 {
		t.Fatalf("expected 3 verifications, got %d", got)
	}
	actions := []string{ActionRevised, ActionRevised, ActionFinalized}
	for i, want := range actions {
		if result.IterationHistory[i].Action != want {
			t.Fatalf("iteration %d: expected %s, got %s", i+1, want, result.IterationHistory[i].Action)
		}
	}
	// The verification paired with the report is the last one taken.
	if len(result.Verification.CriticalIssues()) != 1 {
		t.Fatalf("expected final verification to carry the critical issue")
	}
	if result.Report.MarkdownReport != "# Memo v2\n\nRevised analysis body." {
		t.Fatalf("expected the revised report to be returned")
	}
}

func TestRunCriticalIssueForcesOneRevision(t *testing.T) {
	stub := newStubInvoker().
		respond(RolePlanner, planJSON).
		respond(RoleSearch, "summary one").
		respond(RoleWriter, reportJSON).
		respond(RoleVerifier, criticalVerificationJSON, goodVerificationJSON).
		respond(RoleRevision, revisedReportJSON)

	result, err := newTestManager(t, stub, 3).Run(context.Background(), "SNAP work requirements")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.IterationCount != 2 {
		t.Fatalf("expected 2 iterations, got %d", result.IterationCount)
	}
	if got := stub.callCount(RoleRevision); got != 1 {
		t.Fatalf("expected 1 revision, got %d", got)
	}
	if result.FinalQuality != QualityGood {
		t.Fatalf("expected good final quality, got %s", result.FinalQuality)
	}
}

func TestRunDegradedVerificationFinalizes(t *testing.T) {
	// The verifier capability fails outright. The run must still return a
	// report, carrying a degraded assessment, without spending revisions.
	stub := newStubInvoker().
		respond(RolePlanner, planJSON).
		respond(RoleSearch, "summary one").
		respond(RoleWriter, reportJSON).
		fail(RoleVerifier, errors.New("model unavailable"))

	result, err := newTestManager(t, stub, 3).Run(context.Background(), "SNAP work requirements")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Verification.Degraded {
		t.Fatalf("expected degraded verification")
	}
	if result.IterationCount != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.IterationCount)
	}
	if result.FinalQuality != QualityPoor {
		t.Fatalf("expected poor quality, got %s", result.FinalQuality)
	}
	if got := stub.callCount(RoleRevision); got != 0 {
		t.Fatalf("expected no revisions against synthetic feedback, got %d", got)
	}
}

func TestRunPlannerFailureAborts(t *testing.T) {
	stub := newStubInvoker().fail(RolePlanner, errors.New("boom"))

	_, err := newTestManager(t, stub, 3).Run(context.Background(), "SNAP work requirements")
	if err == nil {
		t.Fatalf("expected error")
	}
	stage, ok := FailedStage(err)
	if !ok || stage != StagePlanning {
		t.Fatalf("expected planning stage error, got %v", err)
	}
}

func TestRunDraftFailureAborts(t *testing.T) {
	stub := newStubInvoker().
		respond(RolePlanner, planJSON).
		respond(RoleSearch, "summary one").
		fail(RoleWriter, errors.New("boom"))

	_, err := newTestManager(t, stub, 3).Run(context.Background(), "SNAP work requirements")
	stage, ok := FailedStage(err)
	if !ok || stage != StageDrafting {
		t.Fatalf("expected drafting stage error, got %v", err)
	}
}

func TestRunEmitsProgressPhases(t *testing.T) {
	stub := newStubInvoker().
		respond(RolePlanner, planJSON).
		respond(RoleSearch, "summary one").
		respond(RoleWriter, reportJSON).
		respond(RoleVerifier, goodVerificationJSON)

	var phases []Phase
	cfg := &config.Config{Research: config.ResearchConfig{MaxIterations: 3, VerifierMode: "monolithic"}}
	mgr := NewManager(cfg, stub, nil, func(ev ProgressEvent) {
		phases = append(phases, ev.Phase)
	})
	if _, err := mgr.Run(context.Background(), "SNAP work requirements"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[Phase]bool{PhasePlanning: false, PhaseSearching: false, PhaseDrafting: false, PhaseVerifying: false, PhaseFinalized: false}
	for _, p := range phases {
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for phase, seen := range want {
		if !seen {
			t.Fatalf("phase %s never emitted (got %v)", phase, phases)
		}
	}
}
