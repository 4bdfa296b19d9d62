// =============================================================================
// AgentChat DeepSeek Provider
// =============================================================================

package deepseek

import (
	"github.com/BaSui01/agentchat/llm"
	llmproviders "github.com/BaSui01/agentchat/llm/providers"
	"github.com/BaSui01/agentchat/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const (
	// ProviderName 是 DeepSeek 提供商的注册名。
	ProviderName = "deepseek"

	defaultBaseURL = "https://api.deepseek.com"
	fallbackModel  = "deepseek-chat"

	// reasonerModel 是推理模型,通过请求 Metadata["reasoning"]="true" 选择。
	reasonerModel = "deepseek-reasoner"
)

// Provider 是 DeepSeek API 的 Provider 实现。
type Provider struct {
	*openaicompat.Provider
}

// New 创建 DeepSeek Provider。
func New(cfg llmproviders.DeepSeekConfig, logger *zap.Logger) *Provider {
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
		// DeepSeek 的端点不带 /v1 前缀
		EndpointPath:   "/chat/completions",
		ModelsEndpoint: "/models",
		RequestHook: func(req *llm.ChatRequest, body *llmproviders.OpenAICompatRequest) {
			// 请求元数据标记 reasoning 时切换到推理模型
			if req != nil && req.Metadata["reasoning"] == "true" && req.Model == "" {
				body.Model = reasonerModel
			}
		},
	}, logger)
	return &Provider{Provider: compat}
}
