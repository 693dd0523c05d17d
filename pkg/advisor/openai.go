package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"
)

const (
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// OpenAIProvider talks to an OpenAI compatible chat completions endpoint.
type OpenAIProvider struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: DefaultOpenAIBaseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Arguments   string         `json:"arguments,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string       `json:"content"`
			ToolCalls []openAITool `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(p.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OpenAI API returned status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.do(ctx, http.MethodGet, "/models", nil, &result); err != nil {
		return nil, err
	}

	var models []string
	for _, m := range result.Data {
		if isChatModel(m.ID) {
			models = append(models, m.ID)
		}
	}
	slices.Sort(models)
	return models, nil
}

func openAITools(tools []Tool) []openAITool {
	var out []openAITool
	for _, t := range tools {
		props := make(map[string]any)
		params := t.Parameters()
		for _, name := range slices.Sorted(maps.Keys(params)) {
			props[name] = map[string]any{"type": "string", "description": params[name]}
		}
		out = append(out, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  map[string]any{"type": "object", "properties": props},
			},
		})
	}
	return out
}

func (p *OpenAIProvider) GenerateResponse(ctx context.Context, history []Message, tools []Tool) (string, *ToolCall, error) {
	req := openAIRequest{Model: p.Model, Tools: openAITools(tools)}
	for _, msg := range history {
		role := msg.Role
		switch msg.Role {
		case RoleModel:
			role = "assistant"
		case RoleFunction:
			role = "user"
		}
		req.Messages = append(req.Messages, openAIMessage{Role: role, Content: msg.Content})
	}

	var resp openAIResponse
	if err := p.do(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return "", nil, err
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("no response choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		fn := msg.ToolCalls[0].Function
		args := make(map[string]any)
		if fn.Arguments != "" {
			if err := json.Unmarshal([]byte(fn.Arguments), &args); err != nil {
				return "", nil, fmt.Errorf("decode tool arguments: %w", err)
			}
		}
		return msg.Content, &ToolCall{ToolName: fn.Name, Args: args}, nil
	}
	return msg.Content, nil, nil
}

// isChatModel keeps gpt-* and the o1/o3 style reasoning models.
func isChatModel(id string) bool {
	if strings.HasPrefix(id, "gpt-") {
		return true
	}
	return len(id) > 1 && id[0] == 'o' && id[1] >= '0' && id[1] <= '9'
}
