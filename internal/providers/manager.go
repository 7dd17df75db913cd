package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"qaforge/internal/config"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type Manager struct {
	cfg          config.Config
	logger       *zap.Logger
	llmProviders []NamedLLMProvider
	embedRefs    []ProviderRef
	cache        *EmbeddingsCache
}

func NewManager(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{cfg: cfg, logger: logger, embedRefs: ParseProviderList(cfg.EmbedProviders)}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildLLM(ctx, ref, cfg)
		if err != nil {
			return nil, err
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: p})
	}
	m.cache = NewEmbeddingsCache(time.Duration(cfg.EmbeddingInitBackoff)*time.Second, func(ctx context.Context, ref ProviderRef) (EmbeddingProvider, error) {
		p, err := buildEmbeddings(ctx, ref, cfg)
		if err != nil {
			return nil, err
		}
		if err := warmEmbeddings(ctx, p, cfg.EmbedDim); err != nil {
			return nil, fmt.Errorf("warm up %s: %w", ref.Raw, err)
		}
		return p, nil
	})
	return m, nil
}

// LLM returns a provider that walks the configured backends in preferred
// order, stopping at the first success or fatal error.
func (m *Manager) LLM() LLMProvider {
	order := m.PreferredLLMOrder()
	chain := make([]NamedLLMProvider, 0, len(order))
	for _, i := range order {
		chain = append(chain, m.llmProviders[i])
	}
	return &failoverLLM{chain: chain, logger: m.logger}
}

// Embeddings returns the first embedding backend that initializes.
func (m *Manager) Embeddings(ctx context.Context) (EmbeddingProvider, error) {
	var errs []string
	for _, i := range m.PreferredEmbedOrder() {
		ref := m.embedRefs[i]
		p, err := m.cache.Get(ctx, ref)
		if err == nil {
			return p, nil
		}
		m.logger.Warn("embeddings unavailable", zap.String("provider", ref.Raw), zap.Error(err))
		errs = append(errs, err.Error())
	}
	return nil, fmt.Errorf("no embedding provider available: %s", strings.Join(errs, "; "))
}

func (m *Manager) LLMCount() int {
	return len(m.llmProviders)
}

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func (m *Manager) PreferredEmbedOrder() []int {
	return preferredOrder(len(m.embedRefs), func(i int) string { return strings.ToLower(m.embedRefs[i].Name) })
}

// preferredOrder puts real backends ahead of the mock one.
func preferredOrder(n int, nameAt func(i int) string) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

type failoverLLM struct {
	chain  []NamedLLMProvider
	logger *zap.Logger
}

func (f *failoverLLM) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var (
		lastErr  error
		lastInfo ProviderInfo
	)
	for _, p := range f.chain {
		resp, info, err := p.Provider.Generate(ctx, req)
		if err == nil {
			return resp, info, nil
		}
		lastErr, lastInfo = err, info
		if ClassifyError(err) == ErrorFatal || ctx.Err() != nil {
			break
		}
		f.logger.Warn("llm provider failed, trying next", zap.String("provider", p.Ref.Raw), zap.Error(err))
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no llm providers configured")
	}
	return GenerateResponse{}, lastInfo, lastErr
}

func buildLLM(ctx context.Context, ref ProviderRef, cfg config.Config) (LLMProvider, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(cfg.EmbedDim), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbeddingModel)
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", ref.Name)
	}
}

func buildEmbeddings(ctx context.Context, ref ProviderRef, cfg config.Config) (EmbeddingProvider, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(cfg.EmbedDim), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbeddingModel)
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama", "local":
		return NewOllamaProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ref.Name)
	}
}
