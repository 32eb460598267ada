package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// Planner turns a research query into a plan of targeted searches.
type Planner struct {
	invoker Invoker
	logger  *log.Logger
}

// NewPlanner creates a new planner instance.
func NewPlanner(invoker Invoker) *Planner {
	return &Planner{
		invoker: invoker,
		logger:  log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Plan produces a SearchPlan for the query. A planner failure aborts the
// whole pipeline: no partial plan is usable. The 4-12 item bound is the
// planner capability's output contract, not enforced here.
func (p *Planner) Plan(ctx context.Context, query string) (SearchPlan, error) {
	startTime := time.Now()

	input := fmt.Sprintf("Legal Research Query: %s", query)
	response, err := p.invoker.Invoke(ctx, RolePlanner, input)
	if err != nil {
		return SearchPlan{}, stageErr(StagePlanning, fmt.Errorf("failed to generate plan: %w", err))
	}

	plan, err := parseSearchPlan(response)
	if err != nil {
		return SearchPlan{}, stageErr(StagePlanning, fmt.Errorf("failed to parse planning response: %w", err))
	}

	p.logger.Printf("Planning completed in %v with %d searches", time.Since(startTime), len(plan.Searches))
	return plan, nil
}

func parseSearchPlan(response string) (SearchPlan, error) {
	jsonStr, err := extractJSONObject(response)
	if err != nil {
		return SearchPlan{}, err
	}

	var plan SearchPlan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return SearchPlan{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	// Drop items with an empty query; they can't be executed.
	searches := plan.Searches[:0]
	for _, item := range plan.Searches {
		if strings.TrimSpace(item.Query) == "" {
			continue
		}
		searches = append(searches, item)
	}
	plan.Searches = searches
	return plan, nil
}
