package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Reviser rewrites a memo draft against verifier feedback, producing a new
// Report. The original query travels with every revision so the reviser
// stays anchored to the research question.
type Reviser struct {
	invoker Invoker
	logger  *log.Logger
}

// NewReviser creates a new reviser.
func NewReviser(invoker Invoker) *Reviser {
	return &Reviser{
		invoker: invoker,
		logger:  log.New(log.Writer(), "[REVISION] ", log.LstdFlags),
	}
}

// Revise produces a revised report. A revision failure is fatal: the
// controller falls back to the pre-revision draft only by never calling
// Revise, not by swallowing its error.
func (r *Reviser) Revise(ctx context.Context, query string, report Report, feedback VerificationResult) (Report, error) {
	started := time.Now()
	input := buildRevisionInput(query, report, feedback)
	raw, err := r.invoker.Invoke(ctx, RoleRevision, input)
	if err != nil {
		return Report{}, stageErr(StageRevising, err)
	}
	revised, err := parseReport(raw)
	if err != nil {
		return Report{}, stageErr(StageRevising, err)
	}
	r.logger.Printf("Revision completed in %v (%d chars)", time.Since(started), len(revised.MarkdownReport))
	return revised, nil
}

// buildRevisionInput assembles the revision brief: the query, the current
// memo, and the reviewer feedback broken out by severity so critical fixes
// are impossible to miss.
func buildRevisionInput(query string, report Report, feedback VerificationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ORIGINAL QUERY: %s\n\n", query)
	fmt.Fprintf(&b, "CURRENT MEMO:\n%s\n\n", report.MarkdownReport)
	fmt.Fprintf(&b, "REVIEWER FEEDBACK:\nOverall quality: %s (score %.1f/10)\n\n",
		feedback.OverallQuality, feedback.QualityScore)

	var critical, important []Issue
	for _, issue := range feedback.Issues {
		switch issue.Severity {
		case SeverityCritical:
			critical = append(critical, issue)
		case SeverityImportant:
			important = append(important, issue)
		}
	}
	if len(critical) > 0 {
		b.WriteString("CRITICAL ISSUES TO FIX:\n")
		writeIssues(&b, critical)
	}
	if len(important) > 0 {
		b.WriteString("IMPORTANT ISSUES TO ADDRESS:\n")
		writeIssues(&b, important)
	}
	if len(feedback.MissingTopics) > 0 {
		b.WriteString("MISSING TOPICS TO ADD:\n")
		for _, topic := range feedback.MissingTopics {
			fmt.Fprintf(&b, "- %s\n", topic)
		}
		b.WriteString("\n")
	}
	if len(feedback.StrengthsToPreserve) > 0 {
		b.WriteString("STRENGTHS TO PRESERVE:\n")
		for _, strength := range feedback.StrengthsToPreserve {
			fmt.Fprintf(&b, "- %s\n", strength)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeIssues(b *strings.Builder, issues []Issue) {
	for _, issue := range issues {
		fmt.Fprintf(b, "- [%s] %s", issue.Category, issue.Description)
		if issue.Location != "" {
			fmt.Fprintf(b, " (at: %s)", issue.Location)
		}
		if issue.SuggestedFix != "" {
			fmt.Fprintf(b, "\n  Fix: %s", issue.SuggestedFix)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
