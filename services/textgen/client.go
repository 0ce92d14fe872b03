// Package textgen talks to an OpenAI-compatible chat completions API.
package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/codeabode/backend/core"
)

var ErrEmptyAnswer = errors.New("text generator returned no answer")

type Client struct {
	api   *openai.Client
	model string
}

var _ core.TextGenerator = (*Client)(nil)

func NewClient(conf core.TextGenConfig) *Client {
	cfg := openai.DefaultConfig(conf.APIKey)
	if conf.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(conf.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: conf.Timeout}
	return &Client{api: openai.NewClientWithConfig(cfg), model: conf.Model}
}

// schema lets a plain map stand in for the json.Marshaler the SDK expects.
type schema map[string]interface{}

func (s schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(s))
}

func (c *Client) Generate(ctx context.Context, system string, turns []core.Turn) (string, error) {
	return c.complete(ctx, system, turns, nil)
}

// GenerateJSON asks for an answer following the schema and decodes it into out.
func (c *Client) GenerateJSON(ctx context.Context, system string, turns []core.Turn, schemaName string, sch map[string]interface{}, out interface{}) error {
	answer, err := c.complete(ctx, system, turns, &openai.ChatCompletionResponseFormat{
		Type:       openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{Name: schemaName, Schema: schema(sch)},
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(answer), out); err != nil {
		return errors.Wrap(err, "decoding generated JSON")
	}
	return nil
}

func (c *Client) complete(ctx context.Context, system string, turns []core.Turn, format *openai.ChatCompletionResponseFormat) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:          c.model,
		Messages:       make([]openai.ChatCompletionMessage, 0, len(turns)+1),
		ResponseFormat: format,
	}
	if system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, t := range turns {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}

	res, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "calling text generator")
	}
	if len(res.Choices) == 0 || strings.TrimSpace(res.Choices[0].Message.Content) == "" {
		return "", ErrEmptyAnswer
	}
	return res.Choices[0].Message.Content, nil
}
