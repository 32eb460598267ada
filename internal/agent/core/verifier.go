package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// Verifier assesses a memo draft. Verification never fails the pipeline:
// implementations return a degraded (or partially degraded) result instead
// of an error, so every returned report carries an assessment.
type Verifier interface {
	Verify(ctx context.Context, markdownBody string) VerificationResult
}

// specialist criteria checked by the fan-out verifier, in aggregation order.
var specialistRoles = []struct {
	role Role
	name string
}{
	{RoleLegalAccuracy, "legal accuracy"},
	{RoleCitationQuality, "citation quality"},
	{RolePracticalGuidance, "practical guidance"},
	{RoleClarityOrg, "clarity and organization"},
	{RoleCompleteness, "completeness"},
}

// specialistFinding is one specialist's raw output before aggregation.
type specialistFinding struct {
	Issues              []Issue  `json:"specificIssues"`
	MissingTopics       []string `json:"missingTopics"`
	StrengthsToPreserve []string `json:"strengthsToPreserve"`
}

// MonolithicVerifier asks a single reviewer role for the complete
// assessment, score and band included.
type MonolithicVerifier struct {
	invoker Invoker
	logger  *log.Logger
}

// NewMonolithicVerifier creates a single-reviewer verifier.
func NewMonolithicVerifier(invoker Invoker) *MonolithicVerifier {
	return &MonolithicVerifier{
		invoker: invoker,
		logger:  log.New(log.Writer(), "[VERIFIER] ", log.LstdFlags),
	}
}

// Verify runs the single-reviewer assessment. A reviewer failure yields a
// degraded result instead of an error.
func (v *MonolithicVerifier) Verify(ctx context.Context, markdownBody string) VerificationResult {
	started := time.Now()
	raw, err := v.invoker.Invoke(ctx, RoleVerifier, markdownBody)
	if err != nil {
		v.logger.Printf("verification failed, continuing with degraded result: %v", err)
		return degradedResult(err)
	}
	result, err := parseVerification(raw)
	if err != nil {
		v.logger.Printf("verification response unusable, continuing with degraded result: %v", err)
		return degradedResult(err)
	}
	v.logger.Printf("Verification completed in %v: %s (score %.1f, %d issues)",
		time.Since(started), result.OverallQuality, result.QualityScore, len(result.Issues))
	return result
}

func parseVerification(raw string) (VerificationResult, error) {
	blob, err := extractJSONObject(raw)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("locating verification JSON: %w", err)
	}
	var result VerificationResult
	if err := json.Unmarshal([]byte(blob), &result); err != nil {
		return VerificationResult{}, fmt.Errorf("parsing verification JSON: %w", err)
	}
	return result, nil
}

// FanoutVerifier runs one specialist per scoring criterion concurrently
// and derives the score arithmetically from the pooled findings. A failed
// specialist contributes a synthetic critical issue naming its criterion,
// so a blind spot reads as a defect rather than a pass.
type FanoutVerifier struct {
	invoker Invoker
	logger  *log.Logger
}

// NewFanoutVerifier creates a specialist fan-out verifier.
func NewFanoutVerifier(invoker Invoker) *FanoutVerifier {
	return &FanoutVerifier{
		invoker: invoker,
		logger:  log.New(log.Writer(), "[VERIFIER] ", log.LstdFlags),
	}
}

// Verify fans the draft out to all specialists and aggregates their
// findings. It never returns an error: even all specialists failing just
// produces five synthetic critical issues and a zero score.
func (v *FanoutVerifier) Verify(ctx context.Context, markdownBody string) VerificationResult {
	started := time.Now()
	findings := make([]specialistFinding, len(specialistRoles))
	var wg sync.WaitGroup
	for i, spec := range specialistRoles {
		wg.Add(1)
		go func(i int, role Role, name string) {
			defer wg.Done()
			finding, err := v.runSpecialist(ctx, role, markdownBody)
			if err != nil {
				v.logger.Printf("%s specialist failed: %v", name, err)
				finding = specialistFinding{Issues: []Issue{{
					Category:     CategoryIncompleteAnalysis,
					Description:  fmt.Sprintf("The %s check could not be completed: %v", name, err),
					Severity:     SeverityCritical,
					SuggestedFix: fmt.Sprintf("Manually review the memo for %s before relying on it.", name),
				}}}
			}
			findings[i] = finding
		}(i, spec.role, spec.name)
	}
	wg.Wait()

	result := aggregate(findings)
	v.logger.Printf("Verification completed in %v: %s (score %.1f, %d issues)",
		time.Since(started), result.OverallQuality, result.QualityScore, len(result.Issues))
	return result
}

func (v *FanoutVerifier) runSpecialist(ctx context.Context, role Role, markdownBody string) (specialistFinding, error) {
	raw, err := v.invoker.Invoke(ctx, role, "Memo to review:\n\n"+markdownBody)
	if err != nil {
		return specialistFinding{}, err
	}
	blob, err := extractJSONObject(raw)
	if err != nil {
		return specialistFinding{}, fmt.Errorf("locating specialist JSON: %w", err)
	}
	var finding specialistFinding
	if err := json.Unmarshal([]byte(blob), &finding); err != nil {
		return specialistFinding{}, fmt.Errorf("parsing specialist JSON: %w", err)
	}
	return finding, nil
}

// aggregate pools specialist findings into one result. The score starts at
// 10 and loses 2 points per critical and 1 per important issue, clamped to
// [0, 10]. Minor issues are reported but not scored.
func aggregate(findings []specialistFinding) VerificationResult {
	var result VerificationResult
	missing := map[string]bool{}
	strengths := map[string]bool{}
	for _, f := range findings {
		result.Issues = append(result.Issues, f.Issues...)
		for _, t := range f.MissingTopics {
			if !missing[t] {
				missing[t] = true
				result.MissingTopics = append(result.MissingTopics, t)
			}
		}
		for _, s := range f.StrengthsToPreserve {
			if !strengths[s] {
				strengths[s] = true
				result.StrengthsToPreserve = append(result.StrengthsToPreserve, s)
			}
		}
	}

	var critical, important int
	for _, issue := range result.Issues {
		switch issue.Severity {
		case SeverityCritical:
			critical++
		case SeverityImportant:
			important++
		}
	}

	score := 10 - 2*float64(critical) - float64(important)
	if score < 0 {
		score = 0
	}
	result.QualityScore = score

	switch {
	case score >= 9 && critical == 0:
		result.OverallQuality = QualityExcellent
	case score >= 7 && critical == 0:
		result.OverallQuality = QualityGood
	case score >= 5 && critical <= 2:
		result.OverallQuality = QualityNeedsRevision
	default:
		result.OverallQuality = QualityPoor
	}
	result.Verified = score >= 7 && critical == 0
	result.RecommendRevision = score < 7 || critical > 0
	return result
}

// degradedResult is the assessment substituted when verification itself
// failed. The low score and critical issue keep the failure visible in the
// result; the controller treats Degraded as a finalize signal since
// revising against synthetic feedback would burn iterations for nothing.
func degradedResult(err error) VerificationResult {
	return VerificationResult{
		Verified:       false,
		OverallQuality: QualityPoor,
		QualityScore:   3,
		Issues: []Issue{{
			Category:     CategoryFactualError,
			Description:  fmt.Sprintf("Verification could not be completed: %v", err),
			Severity:     SeverityCritical,
			SuggestedFix: "Have the memo reviewed manually before relying on it.",
		}},
		RecommendRevision: false,
		Degraded:          true,
	}
}
