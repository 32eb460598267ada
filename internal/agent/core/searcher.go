package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Searcher executes a SearchPlan concurrently against the search
// capability. A single item's failure never aborts the batch; it is
// logged, recorded in the item's outcome, and excluded from the summaries.
type Searcher struct {
	invoker  Invoker
	logger   *log.Logger
	progress ProgressFunc
}

// NewSearcher creates a new search executor.
func NewSearcher(invoker Invoker, progress ProgressFunc) *Searcher {
	return &Searcher{
		invoker:  invoker,
		logger:   log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
		progress: progress,
	}
}

// Search runs every planned item and returns the successful summaries
// plus a per-item outcome record (index-aligned with the plan). The
// summaries preserve plan order for determinism even though execution is
// concurrent.
func (s *Searcher) Search(ctx context.Context, plan SearchPlan) ([]string, []SearchOutcome) {
	total := len(plan.Searches)
	outcomes := make([]SearchOutcome, total)
	if total == 0 {
		return nil, outcomes
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	for i, item := range plan.Searches {
		wg.Add(1)
		go func(i int, item SearchItem) {
			defer wg.Done()
			outcome := SearchOutcome{Item: item}
			summary, err := s.searchOne(ctx, item)
			if err != nil {
				outcome.Err = err.Error()
				s.logger.Printf("search %q failed: %v", item.Query, err)
			} else {
				outcome.Summary = summary
			}
			mu.Lock()
			outcomes[i] = outcome
			completed++
			// Emission stays under the lock so consumers see serialized events.
			s.emit(ProgressEvent{Phase: PhaseSearching, Completed: completed, Total: total, Time: time.Now()})
			mu.Unlock()
		}(i, item)
	}
	wg.Wait()

	var summaries []string
	for _, o := range outcomes {
		if o.Err == "" && o.Summary != "" {
			summaries = append(summaries, o.Summary)
		}
	}
	s.logger.Printf("Completed %d/%d searches", len(summaries), total)
	return summaries, outcomes
}

func (s *Searcher) searchOne(ctx context.Context, item SearchItem) (string, error) {
	input := fmt.Sprintf("Legal search term: %s\nReason: %s", item.Query, item.Reason)
	out, err := s.invoker.Invoke(ctx, RoleSearch, input)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (s *Searcher) emit(ev ProgressEvent) {
	if s.progress != nil {
		s.progress(ev)
	}
}
