package vision

import (
	"context"
	"strings"
)

// Client sends one image plus instruction to a backend and returns its raw text.
// Implementations do not retry.
type Client interface {
	Provider() ProviderConfig
	Generate(ctx context.Context, image []byte, prompt, model string) (string, error)
}

// Request is a validated Generate call, ready to be sent.
type Request struct {
	Model  string
	Prompt string
	Image  Image
	Data   []byte
}

// Prepare runs the checks every backend performs before touching the network.
func Prepare(p ProviderConfig, image []byte, prompt, model string) (Request, error) {
	model = strings.TrimSpace(model)
	if strings.TrimSpace(prompt) == "" {
		return Request{}, &Error{Kind: KindConfiguration, Provider: p.ID, Err: errEmptyPrompt}
	}
	if !p.AllowsModel(model) {
		return Request{}, &Error{Kind: KindConfiguration, Provider: p.ID, Err: &modelError{model: model}}
	}
	img, err := Inspect(image)
	if err != nil {
		return Request{}, &Error{Kind: KindInvalidImage, Provider: p.ID, Err: err}
	}
	return Request{Model: model, Prompt: prompt, Image: img, Data: image}, nil
}
