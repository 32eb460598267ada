package core

import (
	"context"
	"time"
)

// Role selects one of the language-model capabilities the pipeline invokes.
type Role string

const (
	RolePlanner      Role = "planner"
	RoleSearch       Role = "search"
	RoleLegalAnalyst Role = "legal_analysis"
	RolePolicyImpact Role = "policy_impact"
	RoleWriter       Role = "writer"
	RoleVerifier     Role = "verifier"
	RoleRevision     Role = "revision"

	// Fan-out verifier specialists, one per scoring criterion.
	RoleLegalAccuracy     Role = "verify_legal_accuracy"
	RoleCitationQuality   Role = "verify_citation_quality"
	RolePracticalGuidance Role = "verify_practical_guidance"
	RoleClarityOrg        Role = "verify_clarity_organization"
	RoleCompleteness      Role = "verify_completeness"
)

// Invoker runs one agent role against an input and returns its raw JSON
// (or plain-text, for RoleSearch) output. Implementations own model
// selection, prompting, retries and tool wiring.
type Invoker interface {
	Invoke(ctx context.Context, role Role, input string) (string, error)
}

// SearchItem is a single planned search with its justification.
type SearchItem struct {
	Reason string `json:"reason"`
	Query  string `json:"query"`
}

// SearchPlan is the ordered set of searches produced by the planner.
type SearchPlan struct {
	Searches []SearchItem `json:"searches"`
}

// SearchOutcome records what happened to one planned search item, so
// partial failures stay traceable to specific items.
type SearchOutcome struct {
	Item    SearchItem `json:"item"`
	Summary string     `json:"summary,omitempty"`
	Err     string     `json:"error,omitempty"`
}

// Report is the structured research memo. Revisions produce new Report
// values; a Report is never mutated after creation.
type Report struct {
	ShortSummary      string   `json:"short_summary"`
	MarkdownReport    string   `json:"markdown_report"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// Issue categories flagged by the verifier.
const (
	CategoryCitationError      = "citation_error"
	CategoryMissingInfo        = "missing_info"
	CategoryFactualError       = "factual_error"
	CategoryUnclearGuidance    = "unclear_guidance"
	CategoryIncompleteAnalysis = "incomplete_analysis"
)

// Issue severities.
const (
	SeverityCritical  = "critical"
	SeverityImportant = "important"
	SeverityMinor     = "minor"
)

// Overall quality bands.
const (
	QualityExcellent     = "excellent"
	QualityGood          = "good"
	QualityNeedsRevision = "needs_revision"
	QualityPoor          = "poor"
)

// Issue is one flagged defect in a report.
type Issue struct {
	Category     string `json:"category"`
	Description  string `json:"description"`
	Severity     string `json:"severity"`
	SuggestedFix string `json:"suggestedFix"`
	Location     string `json:"location,omitempty"`
}

// VerificationResult is the verifier's assessment of one report draft.
// Degraded is set when the assessment is synthetic because the verifier
// itself failed; the controller never revises against a degraded result.
type VerificationResult struct {
	Verified            bool     `json:"verified"`
	OverallQuality      string   `json:"overallQuality"`
	QualityScore        float64  `json:"qualityScore"`
	Issues              []Issue  `json:"specificIssues"`
	MissingTopics       []string `json:"missingTopics"`
	StrengthsToPreserve []string `json:"strengthsToPreserve"`
	RecommendRevision   bool     `json:"recommendRevision"`
	Degraded            bool     `json:"degraded,omitempty"`
}

// CriticalIssues returns the subset of issues with critical severity.
func (v VerificationResult) CriticalIssues() []Issue {
	var out []Issue
	for _, i := range v.Issues {
		if i.Severity == SeverityCritical {
			out = append(out, i)
		}
	}
	return out
}

// IterationRecord is one entry in the run's audit trail.
type IterationRecord struct {
	Iteration   int    `json:"iteration"` // 1-based
	Quality     string `json:"quality"`
	IssuesFound int    `json:"issuesFound"`
	Action      string `json:"action"` // "revised" or "finalized"
}

// Iteration actions.
const (
	ActionRevised   = "revised"
	ActionFinalized = "finalized"
)

// ResearchResult is the terminal output of one end-to-end run. The
// verification always describes the returned report: both come from the
// same final iteration.
type ResearchResult struct {
	Report           Report             `json:"report"`
	Verification     VerificationResult `json:"verification"`
	IterationCount   int                `json:"iterationCount"`
	FinalQuality     string             `json:"finalQuality"`
	IterationHistory []IterationRecord  `json:"iterationHistory"`
	SearchOutcomes   []SearchOutcome    `json:"searchOutcomes,omitempty"`
	Elapsed          time.Duration      `json:"elapsed"`
}

// Phase identifies a pipeline stage for progress reporting.
type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhaseSearching Phase = "searching"
	PhaseDrafting  Phase = "drafting"
	PhaseVerifying Phase = "verifying"
	PhaseRevising  Phase = "revising"
	PhaseFinalized Phase = "finalized"
)

// ProgressEvent is emitted at phase transitions and per completed search
// item. Delivery is serialized, but search completions arrive from worker
// goroutines. Consumers (SSE handlers, CLI printers) must not block.
type ProgressEvent struct {
	Phase     Phase     `json:"phase"`
	Iteration int       `json:"iteration,omitempty"`
	Completed int       `json:"completed,omitempty"` // searches done so far
	Total     int       `json:"total,omitempty"`     // searches planned
	Quality   string    `json:"quality,omitempty"`
	Note      string    `json:"note,omitempty"`
	Time      time.Time `json:"time"`
}

// ProgressFunc receives progress events. A nil ProgressFunc is valid and
// disables progress reporting without affecting pipeline behaviour.
type ProgressFunc func(ProgressEvent)
