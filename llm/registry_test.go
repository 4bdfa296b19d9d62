package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider is a minimal Provider for registry tests.
type stubProvider struct {
	name string
}

func (s *stubProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Provider: s.name, Model: req.Model}, nil
}

func (s *stubProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk)
	close(ch)
	return ch, nil
}

func (s *stubProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: true}, nil
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) SupportsNativeFunctionCalling() bool { return true }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewProviderRegistry()
	assert.Equal(t, 0, r.Len())

	p := &stubProvider{name: "openai"}
	r.Register("openai", p)

	got, ok := r.Get("openai")
	require.True(t, ok)
	assert.Same(t, p, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryFirstRegisteredBecomesDefault(t *testing.T) {
	r := NewProviderRegistry()
	r.Register("openai", &stubProvider{name: "openai"})
	r.Register("deepseek", &stubProvider{name: "deepseek"})

	d, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "openai", d.Name())
}

func TestRegistrySetDefault(t *testing.T) {
	r := NewProviderRegistry()
	r.Register("openai", &stubProvider{name: "openai"})
	r.Register("deepseek", &stubProvider{name: "deepseek"})

	require.NoError(t, r.SetDefault("deepseek"))
	d, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "deepseek", d.Name())

	assert.Error(t, r.SetDefault("missing"))
}

func TestRegistryGetOrDefault(t *testing.T) {
	r := NewProviderRegistry()

	_, err := r.GetOrDefault("")
	assert.Error(t, err, "empty registry has no default")

	r.Register("openai", &stubProvider{name: "openai"})

	p, err := r.GetOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = r.GetOrDefault("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = r.GetOrDefault("missing")
	assert.Error(t, err)
}

func TestRegistryListSorted(t *testing.T) {
	r := NewProviderRegistry()
	r.Register("zeta", &stubProvider{name: "zeta"})
	r.Register("alpha", &stubProvider{name: "alpha"})
	r.Register("mid", &stubProvider{name: "mid"})

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.List())
}

func TestRegistryUnregisterClearsDefault(t *testing.T) {
	r := NewProviderRegistry()
	r.Register("openai", &stubProvider{name: "openai"})

	r.Unregister("openai")
	assert.Equal(t, 0, r.Len())

	_, err := r.Default()
	assert.Error(t, err)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewProviderRegistry()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			r.Register("p", &stubProvider{name: "p"})
			r.Unregister("p")
		}
	}()
	for i := 0; i < 100; i++ {
		r.Get("p")
		r.List()
		r.Len()
	}
	<-done
}
