package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/knowledge"
)

type scriptedReply struct {
	text string
	call *ToolCall
}

// scriptedProvider replays canned replies and records what it was sent.
type scriptedProvider struct {
	replies []scriptedReply
	seen    [][]Message
	tools   []string
}

func (p *scriptedProvider) GenerateResponse(_ context.Context, history []Message, tools []Tool) (string, *ToolCall, error) {
	p.seen = append(p.seen, append([]Message(nil), history...))
	p.tools = p.tools[:0]
	for _, t := range tools {
		p.tools = append(p.tools, t.Name())
	}
	r := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return r.text, r.call, nil
}

func (p *scriptedProvider) ListModels(context.Context) ([]string, error) {
	return []string{"scripted"}, nil
}

func testReport() *engine.Report {
	r := engine.Aggregate(engine.ScanMetadata{ToolName: "privaudit"}, engine.HostSnapshot{Kernel: "5.8.0-1-generic"},
		engine.ScanResult{Scanner: engine.ScannerSUID, Findings: []engine.Finding{{
			Category: engine.CategorySUID, Type: engine.TypeSUIDBinary, Severity: engine.SeverityHigh,
			Title: "SUID find", AffectedComponent: "/usr/bin/find",
		}}},
		engine.ScanResult{Scanner: engine.ScannerCron, Findings: []engine.Finding{{
			Category: engine.CategoryCron, Type: engine.TypeCronTiming, Severity: engine.SeverityMedium,
			Title: "Cron job runs from /tmp", AffectedComponent: "/tmp/job.sh",
		}}},
	)
	return &r
}

func testKB(t *testing.T) *knowledge.Base {
	kb, err := knowledge.Default()
	require.NoError(t, err)
	return kb
}

func TestAgentRunsToolsUntilText(t *testing.T) {
	p := &scriptedProvider{replies: []scriptedReply{
		{call: &ToolCall{ToolName: "get_finding", Args: map[string]any{"id": "fnd-002"}}},
		{text: "Fix FND-002 first."},
	}}
	agent := NewAgent(p, nil)
	agent.SetSystemPrompt(GetSystemPrompt())
	for _, tool := range ReportTools(testReport(), testKB(t)) {
		agent.RegisterTool(tool)
	}

	var progress []string
	reply, err := agent.Chat(context.Background(), "what first?", func(s string) { progress = append(progress, s) })
	require.NoError(t, err)
	assert.Equal(t, "Fix FND-002 first.", reply)
	assert.Equal(t, []string{"running get_finding"}, progress)
	assert.Equal(t, []string{"get_finding", "list_findings", "lookup_gtfobins", "lookup_kernel"}, p.tools)

	history := agent.History()
	require.Len(t, history, 5)
	assert.Equal(t, RoleSystem, history[0].Role)
	assert.Contains(t, history[0].Content, "privilege escalation")
	assert.Equal(t, RoleFunction, history[3].Role)
	assert.Contains(t, history[3].Content, "Title: Cron job runs from /tmp")
	assert.Equal(t, RoleModel, history[4].Role)
}

func TestAgentUnknownTool(t *testing.T) {
	p := &scriptedProvider{replies: []scriptedReply{
		{call: &ToolCall{ToolName: "rm_rf"}},
		{text: "done"},
	}}
	agent := NewAgent(p, nil)

	_, err := agent.Chat(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Contains(t, p.seen[1][2].Content, "tool rm_rf not found")
}

func TestAgentToolBudget(t *testing.T) {
	p := &scriptedProvider{replies: []scriptedReply{{call: &ToolCall{ToolName: "list_findings"}}}}
	agent := NewAgent(p, nil)
	agent.RegisterTool(&ListFindingsTool{Report: testReport()})

	_, err := agent.Chat(context.Background(), "loop", nil)
	assert.ErrorIs(t, err, ErrTooManyToolCalls)
	assert.Len(t, p.seen, MaxToolRounds)
}

func TestSetSystemPromptReplaces(t *testing.T) {
	agent := NewAgent(&scriptedProvider{}, nil)
	agent.SetSystemPrompt("a")
	agent.SetSystemPrompt("b")
	assert.Equal(t, []Message{{Role: RoleSystem, Content: "b"}}, agent.History())
}

func TestReportTools(t *testing.T) {
	ctx := context.Background()
	report := testReport()
	kb := testKB(t)

	list := &ListFindingsTool{Report: report}
	out, err := list.Execute(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t,
		"FND-001 [HIGH] SUID/SGID Binary: SUID find (/usr/bin/find)\n"+
			"FND-002 [MEDIUM] Cron Timing Attack: Cron job runs from /tmp (/tmp/job.sh)\n", out)

	out, err = list.Execute(ctx, map[string]any{"min_severity": "high"})
	require.NoError(t, err)
	assert.NotContains(t, out, "FND-002")

	out, err = list.Execute(ctx, map[string]any{"category": "kernel"})
	require.NoError(t, err)
	assert.Equal(t, "No matching findings.", out)

	_, err = list.Execute(ctx, map[string]any{"min_severity": "urgent"})
	assert.Error(t, err)

	_, err = (&GetFindingTool{Report: report}).Execute(ctx, map[string]any{"id": "FND-009"})
	assert.Error(t, err)

	out, err = (&GTFOBinsTool{KB: kb}).Execute(ctx, map[string]any{"binary": "/usr/bin/find"})
	require.NoError(t, err)
	assert.Contains(t, out, "-exec")

	out, err = (&GTFOBinsTool{KB: kb}).Execute(ctx, map[string]any{"binary": "ls"})
	require.NoError(t, err)
	assert.Equal(t, "No known technique for ls.", out)

	out, err = (&KernelTool{KB: kb}).Execute(ctx, map[string]any{"release": "5.8.0-1-generic"})
	require.NoError(t, err)
	assert.Contains(t, out, "Kernel 5.8 risk")
}

func TestOpenAIProvider(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/models":
			w.Write([]byte(`{"data":[{"id":"gpt-4o"},{"id":"whisper-1"},{"id":"omni-moderation-latest"},{"id":"o3-mini"},{"id":"gpt-4o-mini"}]}`))
		case "/chat/completions":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"choices":[{"message":{"content":"","tool_calls":[{"type":"function","function":{"name":"get_finding","arguments":"{\"id\":\"FND-001\"}"}}]}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", "")
	p.BaseURL = srv.URL
	p.Client = srv.Client()

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini", "o3-mini"}, models)

	history := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleModel, Content: "calling"},
		{Role: RoleFunction, Content: "result"},
	}
	_, call, err := p.GenerateResponse(context.Background(), history, ReportTools(testReport(), knowledge.Empty()))
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, "get_finding", call.ToolName)
	assert.Equal(t, "FND-001", call.Args["id"])

	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.Equal(t, []openAIMessage{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "calling"},
		{Role: "user", Content: "result"},
	}, got.Messages)
	require.Len(t, got.Tools, 4)
	assert.Equal(t, "function", got.Tools[0].Type)
}

func TestOpenAIProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("bad", "gpt-4o")
	p.BaseURL = srv.URL
	_, err := p.ListModels(context.Background())
	assert.ErrorContains(t, err, "401")
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(context.Background(), "openai", "", "")
	assert.ErrorContains(t, err, "no API key")

	_, err = NewProvider(context.Background(), "anthropic", "k", "")
	assert.ErrorContains(t, err, "unknown provider")

	p, err := NewProvider(context.Background(), "openai", "k", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.(*OpenAIProvider).Model)
}
