package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"screenmind/api/internal/vision"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	maxTokens      = 1000
	defaultTimeout = 60 * time.Second
)

// Client talks to any OpenAI-compatible chat/completions endpoint. Qwen is the
// same client pointed at the DashScope compatible-mode base URL.
type Client struct {
	cfg vision.ProviderConfig
	api *goopenai.Client
}

type Option func(*goopenai.ClientConfig)

func WithBaseURL(u string) Option {
	return func(c *goopenai.ClientConfig) { c.BaseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *goopenai.ClientConfig) { c.HTTPClient = hc }
}

func New(cfg vision.ProviderConfig, apiKey string, opts ...Option) *Client {
	conf := goopenai.DefaultConfig(strings.TrimSpace(apiKey))
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	conf.HTTPClient = &http.Client{Timeout: defaultTimeout}
	for _, o := range opts {
		o(&conf)
	}
	return &Client{cfg: cfg, api: goopenai.NewClientWithConfig(conf)}
}

func (c *Client) Provider() vision.ProviderConfig { return c.cfg }

func (c *Client) Generate(ctx context.Context, image []byte, prompt, model string) (string, error) {
	req, err := vision.Prepare(c.cfg, image, prompt, model)
	if err != nil {
		return "", err
	}

	dataURL := vision.MakeDataURL(req.Image.MIME(), base64.StdEncoding.EncodeToString(req.Data))
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{Type: goopenai.ChatMessagePartTypeText, Text: req.Prompt},
					{Type: goopenai.ChatMessagePartTypeImageURL, ImageURL: &goopenai.ChatMessageImageURL{URL: dataURL}},
				},
			},
		},
	})
	if err != nil {
		return "", vision.Wrap(c.cfg.ID, statusOf(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", &vision.Error{Kind: vision.KindMalformedResponse, Provider: c.cfg.ID, Err: errors.New("no choices")}
	}
	txt := strings.TrimSpace(resp.Choices[0].Message.Content)
	if txt == "" {
		return "", &vision.Error{Kind: vision.KindMalformedResponse, Provider: c.cfg.ID, Err: vision.ErrEmptyResponse}
	}
	return txt, nil
}

func statusOf(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
