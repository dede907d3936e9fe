package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"screenmind/api/internal/apperrors"
	"screenmind/api/internal/logger"
	"screenmind/api/internal/prompt"
	"screenmind/api/internal/vision"

	"github.com/sirupsen/logrus"
)

const (
	DefaultProvider = vision.Qwen
	DefaultModel    = "qwen-vl-plus"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyCredential = errors.New("empty credential")
)

type ModelInfo struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	DisplayName string `json:"display_name"`
}

// Service owns the active (provider, model, client) selection. All methods
// are safe for concurrent use; an in-flight Analyze keeps the client it
// started with even if the selection changes underneath it.
type Service struct {
	mu       sync.RWMutex
	provider string
	model    string
	creds    map[string]string
	client   vision.Client

	factory Factory
}

type Option func(*Service)

func WithClientFactory(f Factory) Option {
	return func(s *Service) { s.factory = f }
}

// WithCredentials seeds API keys per provider id. Empty values are ignored.
func WithCredentials(creds map[string]string) Option {
	return func(s *Service) {
		for id, key := range creds {
			if key = strings.TrimSpace(key); key != "" {
				s.creds[id] = key
			}
		}
	}
}

// NewService starts on provider/model, falling back to the defaults when the
// pair is not in the catalog.
func NewService(provider, model string, opts ...Option) *Service {
	s := &Service{
		creds:   map[string]string{},
		factory: NewClient,
	}
	for _, o := range opts {
		o(s)
	}

	if p, ok := vision.Lookup(provider); !ok || !p.AllowsModel(model) {
		logger.WithFields(logrus.Fields{"provider": provider, "model": model}).
			Warn("unsupported provider/model, using default")
		provider, model = DefaultProvider, DefaultModel
	}
	s.provider, s.model = provider, model
	s.rebuildLocked()
	return s
}

// rebuildLocked recreates the client for the current selection. Callers hold mu.
func (s *Service) rebuildLocked() {
	s.client = nil
	log := logger.WithFields(logrus.Fields{"provider": s.provider, "model": s.model})

	key := s.creds[s.provider]
	if key == "" {
		log.Warn("no API key for provider")
		return
	}
	p, _ := vision.Lookup(s.provider)
	c, err := s.factory(p, key)
	if err != nil {
		log.WithError(err).Error("client init failed")
		return
	}
	s.client = c
	log.WithField("api_key", logger.MaskKey(key)).Info("client initialized")
}

// Configure switches the active provider and model. An empty credential keeps
// the stored one. Returns false, leaving state untouched, when the pair is
// not offered.
func (s *Service) Configure(provider, model, credential string) bool {
	p, ok := vision.Lookup(provider)
	if !ok || !p.AllowsModel(model) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider, s.model = provider, model
	if c := strings.TrimSpace(credential); c != "" {
		s.creds[provider] = c
	}
	s.rebuildLocked()
	return true
}

func (s *Service) snapshot() (provider, model string, client vision.Client) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider, s.model, s.client
}

// Analyze sends image with the question prompt to the active backend.
// Failures are always *apperrors.Error.
func (s *Service) Analyze(ctx context.Context, image []byte) (string, error) {
	provider, model, client := s.snapshot()
	if client == nil {
		return "", apperrors.NotConfigured(provider)
	}

	log := logger.WithFields(logrus.Fields{"provider": provider, "model": model, "image_bytes": len(image)})
	start := time.Now()
	txt, err := client.Generate(ctx, image, prompt.Build(), model)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		ae := Classify(err)
		log.WithFields(logrus.Fields{"kind": ae.Kind, "elapsed_ms": elapsed}).WithError(err).Warn("analysis failed")
		return "", ae
	}
	log.WithFields(logrus.Fields{"elapsed_ms": elapsed, "chars": len([]rune(txt))}).Info("analysis done")
	return txt, nil
}

// TestConnection sends a blank image and reports whether any text came back.
func (s *Service) TestConnection(ctx context.Context) bool {
	provider, model, client := s.snapshot()
	if client == nil {
		return false
	}
	img, err := vision.BlankPNG(100, 100)
	if err != nil {
		return false
	}
	txt, err := client.Generate(ctx, img, prompt.ConnectionTest, model)
	if err != nil {
		logger.WithFields(logrus.Fields{"provider": provider, "model": model}).WithError(err).Warn("connection test failed")
		return false
	}
	return strings.TrimSpace(txt) != ""
}

func (s *Service) CurrentModelInfo() ModelInfo {
	provider, model, _ := s.snapshot()
	name := "未知模型"
	if p, ok := vision.Lookup(provider); ok {
		name = p.DisplayName
	}
	return ModelInfo{Provider: provider, Model: model, DisplayName: name}
}

func (s *Service) Selection() (provider, model string) {
	provider, model, _ = s.snapshot()
	return provider, model
}

func (s *Service) Providers() []vision.ProviderConfig {
	return vision.Catalog()
}

// SetCredential stores key for provider and rebuilds the client if provider is active.
func (s *Service) SetCredential(provider, key string) error {
	if _, ok := vision.Lookup(provider); !ok {
		return ErrUnknownProvider
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyCredential
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[provider] = key
	if provider == s.provider {
		s.rebuildLocked()
	}
	return nil
}

func (s *Service) RemoveCredential(provider string) error {
	if _, ok := vision.Lookup(provider); !ok {
		return ErrUnknownProvider
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, provider)
	if provider == s.provider {
		s.rebuildLocked()
	}
	return nil
}

// CredentialStatus reports, for every catalog provider, whether a key is set.
func (s *Service) CredentialStatus() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.creds))
	for _, p := range vision.Catalog() {
		out[p.ID] = s.creds[p.ID] != ""
	}
	return out
}
