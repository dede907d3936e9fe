package gemini

import (
	"context"
	"errors"
	"strings"

	"screenmind/api/internal/vision"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const maxOutputTokens = 1000

type Client struct {
	cfg    vision.ProviderConfig
	apiKey string
	opts   []option.ClientOption
}

// New builds a Gemini client. Extra options are appended after the API key
// (endpoint overrides, custom HTTP clients).
func New(cfg vision.ProviderConfig, apiKey string, opts ...option.ClientOption) *Client {
	return &Client{
		cfg:    cfg,
		apiKey: strings.TrimSpace(apiKey),
		opts:   opts,
	}
}

func (c *Client) Provider() vision.ProviderConfig { return c.cfg }

func (c *Client) Generate(ctx context.Context, image []byte, prompt, model string) (string, error) {
	req, err := vision.Prepare(c.cfg, image, prompt, model)
	if err != nil {
		return "", err
	}
	if c.apiKey == "" {
		return "", &vision.Error{Kind: vision.KindUnauthenticated, Provider: c.cfg.ID, Err: errors.New(c.cfg.CredentialEnv + " is empty")}
	}

	opts := append([]option.ClientOption{option.WithAPIKey(c.apiKey)}, c.opts...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", wrap(c.cfg.ID, err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(req.Model)
	m.SetMaxOutputTokens(maxOutputTokens)

	resp, err := m.GenerateContent(ctx,
		genai.Text(req.Prompt),
		&genai.Blob{MIMEType: req.Image.MIME(), Data: req.Data},
	)
	if err != nil {
		return "", wrap(c.cfg.ID, err)
	}
	txt := strings.TrimSpace(firstText(resp))
	if txt == "" {
		return "", &vision.Error{Kind: vision.KindMalformedResponse, Provider: c.cfg.ID, Err: vision.ErrEmptyResponse}
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

// wrap maps Google API errors onto vision kinds. An invalid key comes back as
// 400 with reason API_KEY_INVALID rather than 401.
func wrap(provider string, err error) error {
	var ae *apierror.APIError
	if errors.As(err, &ae) {
		if ae.Reason() == "API_KEY_INVALID" {
			return &vision.Error{Kind: vision.KindUnauthenticated, Provider: provider, Status: ae.HTTPCode(), Err: err}
		}
		if code := ae.HTTPCode(); code > 0 {
			return vision.Wrap(provider, code, err)
		}
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) && ge.Code > 0 {
		return vision.Wrap(provider, ge.Code, err)
	}
	return vision.Wrap(provider, 0, err)
}
