package core

import (
	"context"
	"log"
	"time"

	"github.com/lexhelper/counsel/config"
	"github.com/lexhelper/counsel/internal/agent/telemetry"
)

// Manager drives the full research pipeline: plan, search, draft, then a
// verify/revise loop bounded by the configured iteration budget. The
// returned verification always describes the returned report.
type Manager struct {
	cfg       config.ResearchConfig
	planner   *Planner
	searcher  *Searcher
	writer    *Writer
	verifier  Verifier
	reviser   *Reviser
	telemetry *telemetry.Telemetry
	progress  ProgressFunc
	logger    *log.Logger
}

// NewManager wires a Manager from configuration. The verifier mode selects
// between the specialist fan-out and the single-reviewer assessment.
func NewManager(cfg *config.Config, invoker Invoker, tel *telemetry.Telemetry, progress ProgressFunc) *Manager {
	research := cfg.Research.Normalize()
	var verifier Verifier
	if research.VerifierMode == "monolithic" {
		verifier = NewMonolithicVerifier(invoker)
	} else {
		verifier = NewFanoutVerifier(invoker)
	}
	return &Manager{
		cfg:       research,
		planner:   NewPlanner(invoker),
		searcher:  NewSearcher(invoker, progress),
		writer:    NewWriter(invoker),
		verifier:  verifier,
		reviser:   NewReviser(invoker),
		telemetry: tel,
		progress:  progress,
		logger:    log.New(log.Writer(), "[MANAGER] ", log.LstdFlags),
	}
}

// Run executes one end-to-end research run for the query. Planning,
// drafting and revision failures abort the run; search-item and
// verification failures are absorbed upstream and never surface here.
func (m *Manager) Run(ctx context.Context, query string) (ResearchResult, error) {
	started := time.Now()
	m.logger.Printf("Starting research run: %q", query)

	result, err := m.run(ctx, query)
	result.Elapsed = time.Since(started)

	ev := telemetry.RunEvent{
		Query:     query,
		StartTime: started,
		EndTime:   time.Now(),
		Success:   err == nil,
	}
	if err != nil {
		ev.Error = err.Error()
	} else {
		ev.Iterations = result.IterationCount
		ev.QualityScore = result.Verification.QualityScore
		ev.FinalQuality = result.FinalQuality
	}
	m.telemetry.RecordRunEvent(ev)

	if err != nil {
		return ResearchResult{}, err
	}
	m.logger.Printf("Research run finished in %v: %s after %d iteration(s)",
		result.Elapsed, result.FinalQuality, result.IterationCount)
	return result, nil
}

// stage bounds one pipeline stage with the configured timeout, if any.
func (m *Manager) stage(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.StageTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.StageTimeout)
	}
	return ctx, func() {}
}

func (m *Manager) run(ctx context.Context, query string) (ResearchResult, error) {
	m.emit(ProgressEvent{Phase: PhasePlanning, Time: time.Now()})
	planCtx, cancel := m.stage(ctx)
	plan, err := m.planner.Plan(planCtx, query)
	cancel()
	if err != nil {
		return ResearchResult{}, err
	}

	m.emit(ProgressEvent{Phase: PhaseSearching, Total: len(plan.Searches), Time: time.Now()})
	searchCtx, cancel := m.stage(ctx)
	summaries, outcomes := m.searcher.Search(searchCtx, plan)
	cancel()
	if err := ctx.Err(); err != nil {
		return ResearchResult{}, stageErr(StageSearching, err)
	}

	m.emit(ProgressEvent{Phase: PhaseDrafting, Time: time.Now()})
	draftCtx, cancel := m.stage(ctx)
	report, err := m.writer.DraftInitial(draftCtx, query, summaries)
	cancel()
	if err != nil {
		return ResearchResult{}, err
	}

	var history []IterationRecord
	var verification VerificationResult
	for iteration := 0; ; iteration++ {
		m.emit(ProgressEvent{Phase: PhaseVerifying, Iteration: iteration + 1, Time: time.Now()})
		verifyCtx, cancel := m.stage(ctx)
		verification = m.verifier.Verify(verifyCtx, report.MarkdownReport)
		cancel()
		if err := ctx.Err(); err != nil {
			return ResearchResult{}, stageErr(StageVerifying, err)
		}

		record := IterationRecord{
			Iteration:   iteration + 1,
			Quality:     verification.OverallQuality,
			IssuesFound: len(verification.Issues),
		}
		if !m.shouldRevise(iteration, verification) {
			record.Action = ActionFinalized
			history = append(history, record)
			break
		}
		record.Action = ActionRevised
		history = append(history, record)

		m.emit(ProgressEvent{Phase: PhaseRevising, Iteration: iteration + 1,
			Quality: verification.OverallQuality, Time: time.Now()})
		reviseCtx, cancel := m.stage(ctx)
		report, err = m.reviser.Revise(reviseCtx, query, report, verification)
		cancel()
		if err != nil {
			return ResearchResult{}, err
		}
	}

	m.emit(ProgressEvent{Phase: PhaseFinalized, Iteration: len(history),
		Quality: verification.OverallQuality, Time: time.Now()})
	return ResearchResult{
		Report:           report,
		Verification:     verification,
		IterationCount:   len(history),
		FinalQuality:     verification.OverallQuality,
		IterationHistory: history,
		SearchOutcomes:   outcomes,
	}, nil
}

// shouldRevise decides whether the current draft goes back for another
// revision. A degraded verification finalizes immediately: its findings
// are synthetic and revising against them would spend budget on nothing.
// The hard cap guarantees the final iteration's verification describes the
// returned report.
func (m *Manager) shouldRevise(iteration int, v VerificationResult) bool {
	if v.Degraded {
		m.logger.Printf("Verification degraded, finalizing with current draft")
		return false
	}
	if iteration >= m.cfg.MaxIterations-1 {
		m.logger.Printf("Iteration budget reached (%d), finalizing", m.cfg.MaxIterations)
		return false
	}
	if len(v.CriticalIssues()) > 0 {
		m.logger.Printf("%d critical issue(s) found, revising", len(v.CriticalIssues()))
		return true
	}
	if v.RecommendRevision && v.QualityScore < 7 {
		m.logger.Printf("Reviewer recommends revision (score %.1f), revising", v.QualityScore)
		return true
	}
	return false
}

// Plan exposes the planning stage on its own.
func (m *Manager) Plan(ctx context.Context, query string) (SearchPlan, error) {
	return m.planner.Plan(ctx, query)
}

// Search exposes the search stage on its own.
func (m *Manager) Search(ctx context.Context, plan SearchPlan) ([]string, []SearchOutcome) {
	return m.searcher.Search(ctx, plan)
}

// DraftInitial exposes the drafting stage on its own.
func (m *Manager) DraftInitial(ctx context.Context, query string, summaries []string) (Report, error) {
	return m.writer.DraftInitial(ctx, query, summaries)
}

// Verify exposes the verification stage on its own.
func (m *Manager) Verify(ctx context.Context, markdownBody string) VerificationResult {
	return m.verifier.Verify(ctx, markdownBody)
}

// Revise exposes the revision stage on its own.
func (m *Manager) Revise(ctx context.Context, query string, report Report, feedback VerificationResult) (Report, error) {
	return m.reviser.Revise(ctx, query, report, feedback)
}

func (m *Manager) emit(ev ProgressEvent) {
	if m.progress != nil {
		m.progress(ev)
	}
}
