package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient talks to Bedrock's Converse API with tool use.
type BedrockClient struct {
	api     bedrockConverseAPI
	modelID string
}

func NewBedrockClient(api bedrockConverseAPI, modelID string) *BedrockClient {
	if api == nil {
		panic("llm: bedrock converse client cannot be nil")
	}
	return &BedrockClient{api: api, modelID: modelID}
}

// NewBedrockClientFromRegion loads the default AWS credential chain.
func NewBedrockClientFromRegion(ctx context.Context, region, modelID string) (*BedrockClient, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("llm: bedrock model id is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("llm: load aws config: %w", err)
	}
	return NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), modelID), nil
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(c.modelID) == "" {
		return Response{}, errors.New("llm: bedrock model id is required")
	}

	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		converted, ok, err := bedrockMessage(msg)
		if err != nil {
			return Response{}, err
		}
		if ok {
			messages = append(messages, converted)
		}
	}

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil {
		inference = nil
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(c.modelID),
		System:          systemBlocks,
		Messages:        messages,
		InferenceConfig: inference,
		ToolConfig:      bedrockToolConfig(req.Tools),
	})
	if err != nil {
		return Response{}, err
	}

	return bedrockResponse(out)
}

func bedrockMessage(msg Message) (brtypes.Message, bool, error) {
	var content []brtypes.ContentBlock

	if text := strings.TrimSpace(msg.Content); text != "" {
		content = append(content, &brtypes.ContentBlockMemberText{Value: text})
	}

	for _, call := range msg.ToolCalls {
		var input any = map[string]any{}
		if len(call.Arguments) > 0 {
			if err := json.Unmarshal(call.Arguments, &input); err != nil {
				return brtypes.Message{}, false, fmt.Errorf("llm: tool call %s arguments: %w", call.Name, err)
			}
		}
		content = append(content, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
			ToolUseId: aws.String(call.ID),
			Name:      aws.String(call.Name),
			Input:     document.NewLazyDocument(input),
		}})
	}

	for _, res := range msg.ToolResults {
		status := brtypes.ToolResultStatusSuccess
		if res.IsError {
			status = brtypes.ToolResultStatusError
		}
		content = append(content, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
			ToolUseId: aws.String(res.CallID),
			Content: []brtypes.ToolResultContentBlock{
				&brtypes.ToolResultContentBlockMemberText{Value: res.Content},
			},
			Status: status,
		}})
	}

	if len(content) == 0 {
		return brtypes.Message{}, false, nil
	}

	switch msg.Role {
	case RoleUser:
		return brtypes.Message{Role: brtypes.ConversationRoleUser, Content: content}, true, nil
	case RoleAssistant:
		return brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: content}, true, nil
	default:
		return brtypes.Message{}, false, fmt.Errorf("llm: unsupported role %q", msg.Role)
	}
}

func bedrockToolConfig(specs []ToolSpec) *brtypes.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]brtypes.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(spec.Name),
			Description: aws.String(spec.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(spec.JSONSchema())},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

func bedrockResponse(out *bedrockruntime.ConverseOutput) (Response, error) {
	if out == nil {
		return Response{}, errors.New("llm: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return Response{}, errors.New("llm: bedrock response did not include a message output")
	}

	var (
		text  strings.Builder
		calls []ToolCall
	)
	for _, block := range msgOut.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			text.WriteString(b.Value)
		case *brtypes.ContentBlockMemberToolUse:
			args := json.RawMessage(`{}`)
			if b.Value.Input != nil {
				var decoded any
				if err := b.Value.Input.UnmarshalSmithyDocument(&decoded); err != nil {
					return Response{}, fmt.Errorf("llm: decode tool input: %w", err)
				}
				raw, err := json.Marshal(decoded)
				if err != nil {
					return Response{}, fmt.Errorf("llm: encode tool input: %w", err)
				}
				args = raw
			}
			calls = append(calls, ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: args,
			})
		}
	}

	resp := Response{
		Text:       strings.TrimSpace(text.String()),
		ToolCalls:  calls,
		StopReason: string(out.StopReason),
	}
	if resp.Text == "" && len(resp.ToolCalls) == 0 {
		return Response{}, errors.New("llm: bedrock response contained no text or tool use")
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
