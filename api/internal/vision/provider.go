package vision

import "slices"

// ProviderConfig describes one selectable vision backend.
type ProviderConfig struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"name"`
	Models          []string `json:"models"`
	CredentialEnv   string   `json:"api_key_env"`
	RequiresBaseURL bool     `json:"requires_base_url"`
	BaseURL         string   `json:"base_url,omitempty"`
}

const (
	Gemini = "gemini"
	Qwen   = "qwen"
	OpenAI = "openai"
)

var catalog = []ProviderConfig{
	{
		ID:            Gemini,
		DisplayName:   "Google Gemini",
		Models:        []string{"gemini-1.5-flash", "gemini-1.5-pro"},
		CredentialEnv: "GEMINI_API_KEY",
	},
	{
		ID:              Qwen,
		DisplayName:     "Qwen (通义千问)",
		Models:          []string{"qwen-vl-plus", "qwen-vl-max"},
		CredentialEnv:   "QWEN_API_KEY",
		RequiresBaseURL: true,
		BaseURL:         "https://dashscope.aliyuncs.com/compatible-mode/v1",
	},
	{
		ID:            OpenAI,
		DisplayName:   "OpenAI GPT",
		Models:        []string{"gpt-4o", "gpt-4o-mini"},
		CredentialEnv: "OPENAI_API_KEY",
	},
}

// Catalog returns a copy of the known providers in stable order.
func Catalog() []ProviderConfig {
	out := make([]ProviderConfig, len(catalog))
	for i, p := range catalog {
		p.Models = slices.Clone(p.Models)
		out[i] = p
	}
	return out
}

func Lookup(id string) (ProviderConfig, bool) {
	for _, p := range catalog {
		if p.ID == id {
			p.Models = slices.Clone(p.Models)
			return p, true
		}
	}
	return ProviderConfig{}, false
}

func (p ProviderConfig) AllowsModel(model string) bool {
	return slices.Contains(p.Models, model)
}
