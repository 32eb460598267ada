package core

import (
	"context"
	"sync"
)

// stubInvoker replays canned responses per role. When a role has more than
// one queued response, each call consumes one; the last response repeats.
type stubInvoker struct {
	mu        sync.Mutex
	responses map[Role][]string
	errs      map[Role]error
	calls     map[Role]int
}

func newStubInvoker() *stubInvoker {
	return &stubInvoker{
		responses: map[Role][]string{},
		errs:      map[Role]error{},
		calls:     map[Role]int{},
	}
}

func (s *stubInvoker) respond(role Role, responses ...string) *stubInvoker {
	s.responses[role] = append(s.responses[role], responses...)
	return s
}

func (s *stubInvoker) fail(role Role, err error) *stubInvoker {
	s.errs[role] = err
	return s
}

func (s *stubInvoker) Invoke(_ context.Context, role Role, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[role]++
	if err := s.errs[role]; err != nil {
		return "", err
	}
	queue := s.responses[role]
	if len(queue) == 0 {
		return "", nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		s.responses[role] = queue[1:]
	}
	return resp, nil
}

func (s *stubInvoker) callCount(role Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[role]
}

// invokerFunc adapts a function to the Invoker interface.
type invokerFunc func(ctx context.Context, role Role, input string) (string, error)

func (f invokerFunc) Invoke(ctx context.Context, role Role, input string) (string, error) {
	return f(ctx, role, input)
}

const reportJSON = `{"short_summary":"SNAP work requirement update","markdown_report":"# Memo\n\nAnalysis body.","follow_up_questions":["What about ABAWD waivers?"]}`

const revisedReportJSON = `{"short_summary":"SNAP work requirement update (revised)","markdown_report":"# Memo v2\n\nRevised analysis body.","follow_up_questions":[]}`

const planJSON = `{"searches":[{"reason":"current statute","query":"7 USC 2015 work requirements"},{"reason":"agency guidance","query":"FNS ABAWD guidance 2026"}]}`

const goodVerificationJSON = `{"verified":true,"overallQuality":"good","qualityScore":8,"specificIssues":[],"missingTopics":[],"strengthsToPreserve":["clear structure"],"recommendRevision":false}`

const criticalVerificationJSON = `{"verified":false,"overallQuality":"poor","qualityScore":4,"specificIssues":[{"category":"factual_error","description":"Misstates the ABAWD time limit","severity":"critical","suggestedFix":"Correct to 3 months in 36"}],"missingTopics":["waiver process"],"strengthsToPreserve":[],"recommendRevision":true}`
