// Package google implements llm.LLMClient on the Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"google.golang.org/genai"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/llmerrors"
	"forgeloop/pkg/agent/msg"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/tools"
)

// GeminiClient wraps the GenAI client. The SDK client needs a context, so it is created on first use.
type GeminiClient struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client

	// responses holds model turns keyed by their first tool call ID so thought signatures
	// are replayed verbatim on the next request.
	responses sync.Map
	callSeq   atomic.Int64
}

// NewGeminiClient creates a client for cfg.ModelName.
func NewGeminiClient(cfg llm.Config) *GeminiClient {
	return &GeminiClient{apiKey: cfg.APIKey, model: cfg.ModelName}
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	contents, config, err := g.buildRequest(in)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion failed")
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0] == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	resp := g.convertResponse(result)
	if len(resp.ToolCalls) > 0 && result.Candidates[0].Content != nil {
		g.responses.Store(resp.ToolCalls[0].ID, result.Candidates[0].Content)
	}
	return resp, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

func (g *GeminiClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	g.client = client
	return client, nil
}

//nolint:gocritic // CompletionRequest passed by value to match the interface
func (g *GeminiClient) buildRequest(in llm.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if err := msg.ValidateMessages(in.Messages); err != nil {
		return nil, nil, err
	}
	system, rest := msg.SplitSystem(in.Messages)

	temperature := in.Temperature
	config := &genai.GenerateContentConfig{Temperature: &temperature}
	if in.MaxTokens > 0 {
		config.MaxOutputTokens = int32(in.MaxTokens) //nolint:gosec // bounded by config validation
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	if len(in.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: convertTools(in.Tools)}}
		mode := genai.FunctionCallingConfigModeAuto
		if in.ToolChoice == llm.ToolChoiceAny {
			mode = genai.FunctionCallingConfigModeAny
		}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		}
	}

	return g.convertMessages(rest), config, nil
}

// convertMessages maps roles onto "user" and "model". Function responses need the called
// function's name, which is recovered from the earlier assistant turn.
func (g *GeminiClient) convertMessages(messages []llm.CompletionMessage) []*genai.Content {
	names := make(map[string]string)
	contents := make([]*genai.Content, 0, len(messages))

	for i := range messages {
		m := &messages[i]

		if m.Role == llm.RoleAssistant {
			for _, tc := range m.ToolCalls {
				names[tc.ID] = tc.Name
			}
			if len(m.ToolCalls) > 0 {
				if cached, ok := g.responses.Load(m.ToolCalls[0].ID); ok {
					contents = append(contents, cached.(*genai.Content))
					continue
				}
			}
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: msg.ToolArgs(tc)},
				})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			continue
		}

		var parts []*genai.Part
		for _, tr := range m.ToolResults {
			name := names[tr.ToolCallID]
			if name == "" {
				name = tr.ToolCallID
			}
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:   tr.ToolCallID,
					Name: name,
					Response: map[string]any{
						"content":  tr.Content,
						"is_error": tr.IsError,
					},
				},
			})
		}
		if m.Content != "" {
			parts = append(parts, &genai.Part{Text: m.Content})
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		}
	}
	return contents
}

func convertTools(defs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		properties := make(map[string]*genai.Schema, len(def.InputSchema.Properties))
		for name := range def.InputSchema.Properties {
			prop := def.InputSchema.Properties[name]
			properties[name] = convertSchema(&prop)
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   def.InputSchema.Required,
			},
		})
	}
	return declarations
}

func convertSchema(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{Description: prop.Description, Enum: prop.Enum}
	switch prop.Type {
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertSchema(prop.Items)
		}
	case "object":
		schema.Type = genai.TypeObject
		if len(prop.Properties) > 0 {
			schema.Properties = make(map[string]*genai.Schema, len(prop.Properties))
			for name, child := range prop.Properties {
				if child != nil {
					schema.Properties[name] = convertSchema(child)
				}
			}
			schema.Required = prop.Required
		}
	default:
		schema.Type = genai.TypeString
	}
	return schema
}

// convertResponse assigns IDs to calls the API left unnamed so results can be matched back.
func (g *GeminiClient) convertResponse(result *genai.GenerateContentResponse) llm.CompletionResponse {
	candidate := result.Candidates[0]
	out := llm.CompletionResponse{StopReason: finishReason(candidate.FinishReason)}
	if result.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	if candidate.Content == nil {
		return out
	}

	for _, part := range candidate.Content.Parts {
		switch {
		case part == nil:
		case part.FunctionCall != nil:
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", g.callSeq.Add(1))
				part.FunctionCall.ID = id
			}
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:   id,
				Name: part.FunctionCall.Name,
				Args: deferred.StructuredArgs(args),
			})
		case part.Text != "" && !part.Thought:
			out.Content += part.Text
		}
	}
	if len(out.ToolCalls) > 0 && out.StopReason == llm.StopReasonEndTurn {
		out.StopReason = llm.StopReasonToolUse
	}
	return out
}

func finishReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified:
		return llm.StopReasonEndTurn
	case genai.FinishReasonMaxTokens:
		return llm.StopReasonMaxTokens
	default:
		return string(reason)
	}
}

func classifyError(err error) error {
	status := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Code
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Code
	}
	return fmt.Errorf("gemini request failed: %w", llmerrors.Classify(err, status))
}
