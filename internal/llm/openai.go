// Package llm implements the Generator and EmbeddingDriver contracts on
// top of the OpenAI-compatible chat completions and embeddings APIs.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/rs/zerolog/log"

	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// Config holds the provider connection and model selection.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	ReasoningModel string
	EmbeddingModel string
	EmbeddingDims  int
}

// Client wraps one OpenAI-compatible provider. Safe for concurrent use.
type Client struct {
	api  openai.Client
	conf Config
}

var _ contracts.Generator = (*Client)(nil)
var _ contracts.EmbeddingDriver = (*Client)(nil)

// New builds a client from config. BaseURL is optional and supports
// OpenAI-compatible gateways.
func New(conf Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(conf.APIKey)}
	if conf.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(conf.BaseURL))
	}
	return &Client{api: openai.NewClient(opts...), conf: conf}
}

// Generate runs one chat completion with optional tool access or a
// JSON-schema structured-output contract.
func (c *Client) Generate(ctx context.Context, req *contracts.GenerateRequest) (*contracts.Generation, error) {
	model := req.Model
	if model == "" {
		model = c.conf.ChatModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: buildMessages(req),
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.Parameters),
				},
			},
		})
	}

	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Schema.Name,
					Schema: req.Schema.Schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices for model %s", model)
	}

	msg := resp.Choices[0].Message
	gen := &contracts.Generation{Content: msg.Content}
	if req.Schema != nil && msg.Content != "" {
		gen.Structured = []byte(msg.Content)
	}

	for _, tc := range msg.ToolCalls {
		var input map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				log.Warn().Str("tool", tc.Function.Name).Err(err).Msg("unparseable tool arguments")
			}
		}
		gen.ToolCalls = append(gen.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	return gen, nil
}

// buildMessages maps the transcript onto the chat completions wire shape.
func buildMessages(req *contracts.GenerateRequest) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case models.RoleTool:
			out = append(out, openai.ToolMessage(m.ToolResult, m.ToolCallID))
		}
	}
	return out
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.conf.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// Responses may arrive out of order; Index restores input order.
	vectors := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vectors) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Dimensions reports the configured embedding width.
func (c *Client) Dimensions() int {
	return c.conf.EmbeddingDims
}
