package analysis

import (
	"context"
	"errors"
	"sync"

	"screenmind/api/internal/vision"
)

type fakeClient struct {
	cfg  vision.ProviderConfig
	key  string
	text string
	err  error

	mu      sync.Mutex
	calls   int
	prompts []string
	models  []string
}

func (f *fakeClient) Provider() vision.ProviderConfig { return f.cfg }

func (f *fakeClient) Generate(_ context.Context, _ []byte, prompt, model string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	return f.text, f.err
}

// recordingFactory hands out fakeClients and remembers each one.
type recordingFactory struct {
	mu      sync.Mutex
	text    string
	err     error
	built   []*fakeClient
	buildOK bool
}

func newRecordingFactory(text string, err error) *recordingFactory {
	return &recordingFactory{text: text, err: err, buildOK: true}
}

func (r *recordingFactory) New(p vision.ProviderConfig, key string) (vision.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.buildOK {
		return nil, errors.New("factory down")
	}
	c := &fakeClient{cfg: p, key: key, text: r.text, err: r.err}
	r.built = append(r.built, c)
	return c, nil
}

func (r *recordingFactory) last() *fakeClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.built) == 0 {
		return nil
	}
	return r.built[len(r.built)-1]
}

func (r *recordingFactory) totalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.built {
		c.mu.Lock()
		n += c.calls
		c.mu.Unlock()
	}
	return n
}
