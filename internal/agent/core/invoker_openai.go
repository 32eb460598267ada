package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/lexhelper/counsel/config"
	"github.com/lexhelper/counsel/internal/agent/telemetry"
)

// maxToolRounds bounds how many tool-call rounds the writer may chain
// before the invoker forces a final answer.
const maxToolRounds = 4

// OpenAIInvoker implements Invoker against the OpenAI chat-completions
// API. Each role gets its own system prompt and routed model; the writer
// role additionally exposes the legal_analysis and policy_impact_analysis
// specialists as callable tools.
type OpenAIInvoker struct {
	provider  config.LLMProvider
	routing   config.LLMRoutingConfig
	telemetry *telemetry.Telemetry
	client    *http.Client
	logger    *log.Logger
}

// NewOpenAIInvoker builds an invoker from the configured openai provider.
func NewOpenAIInvoker(cfg *config.Config, tel *telemetry.Telemetry) (*OpenAIInvoker, error) {
	provider, ok := cfg.LLM.Providers["openai"]
	if !ok {
		return nil, fmt.Errorf("llm.providers.openai not configured")
	}
	timeout := provider.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OpenAIInvoker{
		provider:  provider,
		routing:   cfg.LLM.Routing,
		telemetry: tel,
		client:    &http.Client{Timeout: timeout},
		logger:    log.New(log.Writer(), "[LLM] ", log.LstdFlags),
	}, nil
}

// roleModelKey maps an agent role onto its routing slot.
func roleModelKey(role Role) string {
	switch role {
	case RolePlanner:
		return "planning"
	case RoleSearch:
		return "search"
	case RoleLegalAnalyst, RolePolicyImpact:
		return "analysis"
	case RoleWriter:
		return "writing"
	case RoleRevision:
		return "revision"
	}
	return "verification"
}

// Invoke runs one role against an input, retrying transient failures per
// the provider's max_retries setting.
func (o *OpenAIInvoker) Invoke(ctx context.Context, role Role, input string) (string, error) {
	started := time.Now()
	out, err := o.invoke(ctx, role, input)
	o.telemetry.RecordAgentEvent(telemetry.AgentEvent{
		Role:     string(role),
		Duration: time.Since(started),
		Success:  err == nil,
	})
	return out, err
}

func (o *OpenAIInvoker) invoke(ctx context.Context, role Role, input string) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: promptFor(role)},
		{Role: "user", Content: input},
	}

	var tools []chatTool
	if role == RoleWriter {
		tools = writerTools()
	}

	for round := 0; ; round++ {
		resp, err := o.complete(ctx, role, messages, tools)
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 || round >= maxToolRounds {
			return resp.Content, nil
		}

		messages = append(messages, chatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result, err := o.dispatchTool(ctx, call)
			if err != nil {
				result = fmt.Sprintf(`{"error":%q}`, err.Error())
			}
			messages = append(messages, chatMessage{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}
}

// dispatchTool routes a writer tool call to its specialist role.
func (o *OpenAIInvoker) dispatchTool(ctx context.Context, call toolCall) (string, error) {
	var args struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return "", fmt.Errorf("parsing tool arguments: %w", err)
	}
	switch call.Function.Name {
	case string(RoleLegalAnalyst):
		return o.invoke(ctx, RoleLegalAnalyst, args.Input)
	case string(RolePolicyImpact):
		return o.invoke(ctx, RolePolicyImpact, args.Input)
	}
	return "", fmt.Errorf("unknown tool %q", call.Function.Name)
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

func writerTools() []chatTool {
	params := json.RawMessage(`{"type":"object","properties":{"input":{"type":"string","description":"Search results or topic to analyse"}},"required":["input"]}`)
	mk := func(name, desc string) chatTool {
		var t chatTool
		t.Type = "function"
		t.Function.Name = name
		t.Function.Description = desc
		t.Function.Parameters = params
		return t
	}
	return []chatTool{
		mk(string(RoleLegalAnalyst), "Produce a concise legal analysis of search results with Bluebook citations."),
		mk(string(RolePolicyImpact), "Analyse the practical policy impact of benefit changes on low-income clients."),
	}
}

type completion struct {
	Content   string
	ToolCalls []toolCall
}

func (o *OpenAIInvoker) complete(ctx context.Context, role Role, messages []chatMessage, tools []chatTool) (completion, error) {
	apiKey := o.provider.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return completion{}, fmt.Errorf("OpenAI API key not configured")
	}

	modelKey := o.routing.ModelFor(roleModelKey(role))
	m, ok := o.provider.Models[modelKey]
	if !ok {
		return completion{}, fmt.Errorf("model %s not configured", modelKey)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	type chatReq struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		Temperature float64       `json:"temperature,omitempty"`
		MaxTokens   int           `json:"max_tokens,omitempty"`
		Tools       []chatTool    `json:"tools,omitempty"`
	}
	body, err := json.Marshal(chatReq{
		Model:       apiModel,
		Messages:    messages,
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
		Tools:       tools,
	})
	if err != nil {
		return completion{}, fmt.Errorf("marshal: %w", err)
	}

	baseURL := o.provider.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	retries := o.provider.MaxRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return completion{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		out, err := o.doRequest(ctx, baseURL, apiKey, modelKey, m, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return completion{}, ctx.Err()
		}
		o.logger.Printf("attempt %d for %s failed: %v", attempt+1, role, err)
	}
	return completion{}, lastErr
}

func (o *OpenAIInvoker) doRequest(ctx context.Context, baseURL, apiKey, modelKey string, m config.LLMModel, body []byte) (completion, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return completion{}, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return completion{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return completion{}, fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, detail)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content   string     `json:"content"`
				ToolCalls []toolCall `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return completion{}, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return completion{}, fmt.Errorf("no choices")
	}

	prompt := int64(out.Usage.PromptTokens)
	compl := int64(out.Usage.CompletionTokens)
	cost := float64(prompt)/1000.0*m.CostPer1K + float64(compl)/1000.0*m.CostPer1KOutput
	o.telemetry.RecordLLMUsage(modelKey, prompt, compl, cost)

	msg := out.Choices[0].Message
	return completion{Content: msg.Content, ToolCalls: msg.ToolCalls}, nil
}
