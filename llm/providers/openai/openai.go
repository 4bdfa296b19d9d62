// =============================================================================
// AgentChat OpenAI Provider
// =============================================================================

package openai

import (
	"net/http"

	llmproviders "github.com/BaSui01/agentchat/llm/providers"
	"github.com/BaSui01/agentchat/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const (
	// ProviderName 是 OpenAI 提供商的注册名。
	ProviderName = "openai"

	defaultBaseURL = "https://api.openai.com"
	fallbackModel  = "gpt-4o-mini"
)

// Provider 是 OpenAI 官方 API 的 Provider 实现。
type Provider struct {
	*openaicompat.Provider
}

// New 创建 OpenAI Provider。organization 为空时不发送组织头。
func New(cfg llmproviders.OpenAIConfig, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	compat := openaicompat.New(openaicompat.Config{
		ProviderName:  ProviderName,
		APIKey:        cfg.APIKey,
		BaseURL:       baseURL,
		DefaultModel:  cfg.Model,
		FallbackModel: fallbackModel,
		Timeout:       cfg.Timeout,
		BuildHeaders: func(req *http.Request, apiKey string) {
			llmproviders.BearerTokenHeaders(req, apiKey)
			if cfg.Organization != "" {
				req.Header.Set("OpenAI-Organization", cfg.Organization)
			}
		},
	}, logger)
	return &Provider{Provider: compat}
}
