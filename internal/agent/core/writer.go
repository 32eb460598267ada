package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// Writer produces the structured research memo from the original query
// and the accumulated search summaries.
type Writer struct {
	invoker Invoker
	logger  *log.Logger
}

// NewWriter creates a new memo writer.
func NewWriter(invoker Invoker) *Writer {
	return &Writer{
		invoker: invoker,
		logger:  log.New(log.Writer(), "[WRITER] ", log.LstdFlags),
	}
}

// DraftInitial writes the first full memo draft. A failure here is fatal
// to the run: there is nothing to verify or revise without a draft.
func (w *Writer) DraftInitial(ctx context.Context, query string, summaries []string) (Report, error) {
	started := time.Now()
	input := fmt.Sprintf("Original legal research query: %s\nSummarized legal research results: %s",
		query, strings.Join(summaries, "\n\n"))
	raw, err := w.invoker.Invoke(ctx, RoleWriter, input)
	if err != nil {
		return Report{}, stageErr(StageDrafting, err)
	}
	report, err := parseReport(raw)
	if err != nil {
		return Report{}, stageErr(StageDrafting, err)
	}
	w.logger.Printf("Initial draft completed in %v (%d chars)", time.Since(started), len(report.MarkdownReport))
	return report, nil
}

func parseReport(raw string) (Report, error) {
	blob, err := extractJSONObject(raw)
	if err != nil {
		return Report{}, fmt.Errorf("locating report JSON: %w", err)
	}
	var report Report
	if err := json.Unmarshal([]byte(blob), &report); err != nil {
		return Report{}, fmt.Errorf("parsing report JSON: %w", err)
	}
	if strings.TrimSpace(report.MarkdownReport) == "" {
		return Report{}, fmt.Errorf("report has empty markdown body")
	}
	return report, nil
}
