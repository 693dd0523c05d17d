// Package advisor runs an LLM-backed triage chat over a finished report.
// The model answers questions about findings and can look things up through
// tools bound to the report and the knowledge base.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"
)

// Tool is an action the model may request during a chat turn.
type Tool interface {
	Name() string
	Description() string
	// Parameters maps each string argument to its description.
	Parameters() map[string]string
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolCall is a request from the model to execute a tool.
type ToolCall struct {
	ToolName string
	Args     map[string]any
}

// Message roles.
const (
	RoleSystem   = "system"
	RoleUser     = "user"
	RoleModel    = "model"
	RoleFunction = "function"
)

// Message is one entry of the chat history.
type Message struct {
	Role    string
	Content string
}

// Provider abstracts the model vendor.
type Provider interface {
	GenerateResponse(ctx context.Context, history []Message, tools []Tool) (string, *ToolCall, error)
	ListModels(ctx context.Context) ([]string, error)
}

// MaxToolRounds bounds how many tool calls one user message may trigger.
const MaxToolRounds = 8

// ErrTooManyToolCalls is returned when the model keeps calling tools.
var ErrTooManyToolCalls = errors.New("model exceeded tool call budget")

// Agent keeps the conversation and dispatches tool calls.
type Agent struct {
	llm     Provider
	tools   map[string]Tool
	history []Message
	logger  *zap.Logger
}

// NewAgent creates a new agent with the given provider.
func NewAgent(llm Provider, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		llm:    llm,
		tools:  make(map[string]Tool),
		logger: logger.Named("advisor"),
	}
}

// RegisterTool adds a tool to the agent's registry.
func (a *Agent) RegisterTool(t Tool) {
	a.tools[t.Name()] = t
}

// SetSystemPrompt replaces the leading system message.
func (a *Agent) SetSystemPrompt(prompt string) {
	if len(a.history) > 0 && a.history[0].Role == RoleSystem {
		a.history[0].Content = prompt
		return
	}
	a.history = append([]Message{{Role: RoleSystem, Content: prompt}}, a.history...)
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []Message {
	return slices.Clone(a.history)
}

// Chat sends input to the model, running requested tools until it answers
// with text. progress, when non-nil, is told about each tool invocation.
func (a *Agent) Chat(ctx context.Context, input string, progress func(string)) (string, error) {
	a.history = append(a.history, Message{Role: RoleUser, Content: input})

	toolList := make([]Tool, 0, len(a.tools))
	for _, name := range slices.Sorted(maps.Keys(a.tools)) {
		toolList = append(toolList, a.tools[name])
	}

	for range MaxToolRounds {
		respText, toolCall, err := a.llm.GenerateResponse(ctx, a.history, toolList)
		if err != nil {
			return "", fmt.Errorf("generate response: %w", err)
		}

		if toolCall == nil {
			a.history = append(a.history, Message{Role: RoleModel, Content: respText})
			return respText, nil
		}

		a.logger.Debug("executing tool", zap.String("tool", toolCall.ToolName), zap.Any("args", toolCall.Args))
		if progress != nil {
			progress(fmt.Sprintf("running %s", toolCall.ToolName))
		}

		a.history = append(a.history, Message{
			Role:    RoleModel,
			Content: fmt.Sprintf("I will call tool %s with args %v", toolCall.ToolName, toolCall.Args),
		})

		tool, exists := a.tools[toolCall.ToolName]
		if !exists {
			a.history = append(a.history, Message{
				Role:    RoleFunction,
				Content: fmt.Sprintf("Error: tool %s not found", toolCall.ToolName),
			})
			continue
		}

		result, err := tool.Execute(ctx, toolCall.Args)
		if err != nil {
			result = fmt.Sprintf("Error executing tool: %v", err)
		}
		a.history = append(a.history, Message{
			Role:    RoleFunction,
			Content: fmt.Sprintf("Tool %s returned: %s", toolCall.ToolName, result),
		})
	}
	return "", ErrTooManyToolCalls
}

// stringArg fetches a string argument, tolerating models that send numbers.
func stringArg(args map[string]any, name string) string {
	v, ok := args[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
