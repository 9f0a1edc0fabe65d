package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/generative-ai-go/genai"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-agent/internal/observability"
)

type mockConverseAPI struct {
	out   *bedrockruntime.ConverseOutput
	err   error
	input *bedrockruntime.ConverseInput
}

func (m *mockConverseAPI) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return m.out, nil
}

var searchTool = ToolSpec{
	Name:        "search_doctors",
	Description: "Busca médicos",
	Properties: map[string]Property{
		"specialty": {Type: "string", Description: "Especialidade"},
		"city":      {Type: "string"},
	},
	Required: []string{"specialty"},
}

func TestToolSpec_JSONSchema(t *testing.T) {
	schema := searchTool.JSONSchema()

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"specialty"}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string", "description": "Especialidade"}, props["specialty"])
	assert.Equal(t, map[string]any{"type": "string"}, props["city"])
}

func TestBedrockClient_ToolUseResponse(t *testing.T) {
	api := &mockConverseAPI{out: &bedrockruntime.ConverseOutput{
		StopReason: brtypes.StopReasonToolUse,
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role: brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: "Vou buscar."},
				&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String("call-1"),
					Name:      aws.String("search_doctors"),
					Input:     document.NewLazyDocument(map[string]any{"specialty": "Cardiologia"}),
				}},
			},
		}},
		Usage: &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5), TotalTokens: aws.Int32(15)},
	}}
	c := NewBedrockClient(api, "model-x")

	resp, err := c.Complete(context.Background(), Request{
		System:   []string{"Você é um assistente."},
		Messages: []Message{{Role: RoleUser, Content: "quero um cardiologista"}},
		Tools:    []ToolSpec{searchTool},
	})
	require.NoError(t, err)

	assert.Equal(t, "Vou buscar.", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call-1", resp.ToolCalls[0].ID)
	assert.Equal(t, "search_doctors", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"specialty":"Cardiologia"}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, int32(15), resp.Usage.TotalTokens)

	require.NotNil(t, api.input)
	assert.Equal(t, "model-x", aws.ToString(api.input.ModelId))
	require.Len(t, api.input.System, 1)
	require.NotNil(t, api.input.ToolConfig)
	require.Len(t, api.input.ToolConfig.Tools, 1)
	spec := api.input.ToolConfig.Tools[0].(*brtypes.ToolMemberToolSpec)
	assert.Equal(t, "search_doctors", aws.ToString(spec.Value.Name))
}

func TestBedrockClient_SendsToolRoundTrip(t *testing.T) {
	api := &mockConverseAPI{out: &bedrockruntime.ConverseOutput{
		StopReason: brtypes.StopReasonEndTurn,
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "Encontrei o Dr. Carlos."}},
		}},
	}}
	c := NewBedrockClient(api, "model-x")

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleUser, Content: "quero um cardiologista"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call-1", Name: "search_doctors", Arguments: json.RawMessage(`{"specialty":"Cardiologia"}`)}}},
			{Role: RoleUser, ToolResults: []ToolResult{{CallID: "call-1", Name: "search_doctors", Content: "doc-001"}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Encontrei o Dr. Carlos.", resp.Text)
	assert.Empty(t, resp.ToolCalls)
	assert.Nil(t, api.input.ToolConfig)

	require.Len(t, api.input.Messages, 3)
	use, ok := api.input.Messages[1].Content[0].(*brtypes.ContentBlockMemberToolUse)
	require.True(t, ok)
	assert.Equal(t, "call-1", aws.ToString(use.Value.ToolUseId))

	result, ok := api.input.Messages[2].Content[0].(*brtypes.ContentBlockMemberToolResult)
	require.True(t, ok)
	assert.Equal(t, brtypes.ConversationRoleUser, api.input.Messages[2].Role)
	assert.Equal(t, brtypes.ToolResultStatusSuccess, result.Value.Status)
}

func TestBedrockClient_Errors(t *testing.T) {
	boom := errors.New("throttled")
	c := NewBedrockClient(&mockConverseAPI{err: boom}, "model-x")
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	assert.ErrorIs(t, err, boom)

	c = NewBedrockClient(&mockConverseAPI{out: &bedrockruntime.ConverseOutput{}}, "model-x")
	_, err = c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	assert.Error(t, err)

	c = NewBedrockClient(&mockConverseAPI{}, "")
	_, err = c.Complete(context.Background(), Request{})
	assert.Error(t, err)
}

func TestGeminiConversions(t *testing.T) {
	tools := geminiTools([]ToolSpec{searchTool})
	require.Len(t, tools, 1)
	decl := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "search_doctors", decl.Name)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, genai.TypeString, decl.Parameters.Properties["city"].Type)
	assert.Nil(t, geminiTools(nil))

	contents, err := geminiContents([]Message{
		{Role: RoleUser, Content: "quero um cardiologista"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "x", Name: "search_doctors", Arguments: json.RawMessage(`{"specialty":"Cardiologia"}`)}}},
		{Role: RoleUser, ToolResults: []ToolResult{{CallID: "x", Name: "search_doctors", Content: "nenhum", IsError: true}}},
		{Role: RoleUser, Content: "   "},
	})
	require.NoError(t, err)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, genai.FunctionCall{Name: "search_doctors", Args: map[string]any{"specialty": "Cardiologia"}}, contents[1].Parts[0])
	assert.Equal(t, genai.FunctionResponse{Name: "search_doctors", Response: map[string]any{"error": "nenhum"}}, contents[2].Parts[0])

	resp, err := geminiResponse(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{
			genai.FunctionCall{Name: "list_cities", Args: map[string]any{}},
		}},
	}}})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "list_cities-0", resp.ToolCalls[0].ID)

	_, err = geminiResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}

type stubClient struct {
	resp  Response
	err   error
	calls int
}

func (s *stubClient) Complete(context.Context, Request) (Response, error) {
	s.calls++
	return s.resp, s.err
}

func TestFallbackClient(t *testing.T) {
	ctx := context.Background()
	primaryErr := errors.New("primary down")

	primary := &stubClient{resp: Response{Text: "primary"}}
	fallback := &stubClient{resp: Response{Text: "fallback"}}
	resp, err := NewFallbackClient(primary, fallback, zerolog.Nop()).Complete(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Text)
	assert.Zero(t, fallback.calls)

	primary = &stubClient{err: primaryErr}
	resp, err = NewFallbackClient(primary, fallback, zerolog.Nop()).Complete(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text)

	_, err = NewFallbackClient(primary, nil, zerolog.Nop()).Complete(ctx, Request{})
	assert.ErrorIs(t, err, primaryErr)

	fallbackErr := errors.New("fallback down")
	_, err = NewFallbackClient(primary, &stubClient{err: fallbackErr}, zerolog.Nop()).Complete(ctx, Request{})
	assert.ErrorIs(t, err, fallbackErr)
}

func TestInstrumentedClient(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	next := &stubClient{resp: Response{Text: "ok"}}

	resp, err := NewInstrumentedClient(next, metrics).Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 1, next.calls)
}
