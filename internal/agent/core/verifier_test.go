package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAggregateScoreArithmetic(t *testing.T) {
	findings := []specialistFinding{
		{Issues: []Issue{
			{Category: CategoryFactualError, Description: "wrong limit", Severity: SeverityCritical},
		}},
		{Issues: []Issue{
			{Category: CategoryCitationError, Description: "bad cite", Severity: SeverityImportant},
			{Category: CategoryUnclearGuidance, Description: "vague", Severity: SeverityImportant},
		}},
		{Issues: []Issue{
			{Category: CategoryMissingInfo, Description: "minor gap", Severity: SeverityMinor},
		}},
	}

	result := aggregate(findings)
	if result.QualityScore != 6 {
		t.Fatalf("expected score 6 (10 - 2 - 1 - 1), got %.1f", result.QualityScore)
	}
	if result.OverallQuality != QualityNeedsRevision {
		t.Fatalf("expected needs_revision, got %s", result.OverallQuality)
	}
	if result.Verified {
		t.Fatalf("a draft with a critical issue must not verify")
	}
	if !result.RecommendRevision {
		t.Fatalf("expected revision recommendation")
	}
	if len(result.Issues) != 4 {
		t.Fatalf("expected all 4 issues pooled, got %d", len(result.Issues))
	}
}

func TestAggregateCleanDraftIsExcellent(t *testing.T) {
	findings := []specialistFinding{
		{StrengthsToPreserve: []string{"clear structure"}},
		{StrengthsToPreserve: []string{"clear structure", "good citations"}},
	}
	result := aggregate(findings)
	if result.QualityScore != 10 {
		t.Fatalf("expected score 10, got %.1f", result.QualityScore)
	}
	if result.OverallQuality != QualityExcellent || !result.Verified {
		t.Fatalf("expected excellent/verified, got %s/%v", result.OverallQuality, result.Verified)
	}
	if result.RecommendRevision {
		t.Fatalf("clean draft must not recommend revision")
	}
	if len(result.StrengthsToPreserve) != 2 {
		t.Fatalf("expected deduped strengths, got %v", result.StrengthsToPreserve)
	}
}

func TestAggregateScoreClampsToZero(t *testing.T) {
	var issues []Issue
	for i := 0; i < 8; i++ {
		issues = append(issues, Issue{Severity: SeverityCritical})
	}
	result := aggregate([]specialistFinding{{Issues: issues}})
	if result.QualityScore != 0 {
		t.Fatalf("expected clamped score 0, got %.1f", result.QualityScore)
	}
	if result.OverallQuality != QualityPoor {
		t.Fatalf("expected poor, got %s", result.OverallQuality)
	}
}

func TestFanoutSpecialistFailureBecomesCriticalIssue(t *testing.T) {
	// One specialist fails; its criterion must surface as a critical
	// finding instead of silently passing.
	invoker := invokerFunc(func(_ context.Context, role Role, _ string) (string, error) {
		if role == RoleCitationQuality {
			return "", errors.New("model unavailable")
		}
		return `{"specificIssues":[],"missingTopics":[],"strengthsToPreserve":[]}`, nil
	})

	result := NewFanoutVerifier(invoker).Verify(context.Background(), "# Memo")
	if result.Degraded {
		t.Fatalf("a single specialist failure must not degrade the whole result")
	}
	crits := result.CriticalIssues()
	if len(crits) != 1 {
		t.Fatalf("expected 1 synthetic critical issue, got %d", len(crits))
	}
	if !strings.Contains(crits[0].Description, "citation quality") {
		t.Fatalf("synthetic issue should name the failed criterion: %q", crits[0].Description)
	}
	if result.QualityScore != 8 {
		t.Fatalf("expected score 8, got %.1f", result.QualityScore)
	}
}

func TestMonolithicVerifierDegradesOnFailure(t *testing.T) {
	invoker := invokerFunc(func(_ context.Context, _ Role, _ string) (string, error) {
		return "", errors.New("model unavailable")
	})

	result := NewMonolithicVerifier(invoker).Verify(context.Background(), "# Memo")
	if !result.Degraded {
		t.Fatalf("expected degraded result")
	}
	if result.QualityScore != 3 || result.OverallQuality != QualityPoor {
		t.Fatalf("unexpected degraded assessment: %.1f %s", result.QualityScore, result.OverallQuality)
	}
	if result.RecommendRevision {
		t.Fatalf("degraded result must not recommend revision")
	}
	crit := result.CriticalIssues()
	if len(crit) != 1 {
		t.Fatalf("degraded result should carry one synthetic critical issue")
	}
	if crit[0].Category != CategoryFactualError {
		t.Fatalf("unexpected issue category: %s", crit[0].Category)
	}
}

func TestMonolithicVerifierParsesResponse(t *testing.T) {
	invoker := invokerFunc(func(_ context.Context, _ Role, _ string) (string, error) {
		return "Here is my review:\n" + criticalVerificationJSON, nil
	})

	result := NewMonolithicVerifier(invoker).Verify(context.Background(), "# Memo")
	if result.Degraded {
		t.Fatalf("unexpected degraded result")
	}
	if result.QualityScore != 4 || len(result.Issues) != 1 {
		t.Fatalf("unexpected parse: %+v", result)
	}
	if result.MissingTopics[0] != "waiver process" {
		t.Fatalf("missing topics not carried: %v", result.MissingTopics)
	}
}
