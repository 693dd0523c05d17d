package advisor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider creates a new Gemini client for modelName.
func NewGeminiProvider(ctx context.Context, apiKey string, modelName string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &GeminiProvider{client: client, model: model}, nil
}

func (g *GeminiProvider) ListModels(ctx context.Context) ([]string, error) {
	iter := g.client.ListModels(ctx)
	var names []string
	for {
		m, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.Contains(m.Name, "gemini") {
			names = append(names, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	return names, nil
}

func geminiTools(tools []Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		props := make(map[string]*genai.Schema)
		params := t.Parameters()
		for _, name := range slices.Sorted(maps.Keys(params)) {
			props[name] = &genai.Schema{Type: genai.TypeString, Description: params[name]}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  &genai.Schema{Type: genai.TypeObject, Properties: props},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (g *GeminiProvider) GenerateResponse(ctx context.Context, history []Message, tools []Tool) (string, *ToolCall, error) {
	g.model.Tools = geminiTools(tools)
	g.model.SystemInstruction = nil

	var cs []*genai.Content
	for _, msg := range history {
		if msg.Role == RoleSystem {
			g.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(msg.Content)}}
			continue
		}
		role := "user"
		if msg.Role == RoleModel {
			role = "model"
		}
		cs = append(cs, &genai.Content{Parts: []genai.Part{genai.Text(msg.Content)}, Role: role})
	}
	if len(cs) == 0 {
		return "", nil, errors.New("empty history")
	}

	session := g.model.StartChat()
	session.History = cs[:len(cs)-1]

	resp, err := session.SendMessage(ctx, cs[len(cs)-1].Parts...)
	if err != nil {
		return "", nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil, errors.New("no response candidates")
	}

	var responseText strings.Builder
	var toolCall *ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			toolCall = &ToolCall{ToolName: p.Name, Args: p.Args}
		case genai.Text:
			responseText.WriteString(string(p))
		}
	}

	if toolCall == nil && responseText.Len() == 0 {
		return "", nil, errors.New("empty response")
	}
	return responseText.String(), toolCall, nil
}

func (g *GeminiProvider) Close() error {
	return g.client.Close()
}
