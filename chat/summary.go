package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/types"
)

// ErrNoReflectionProvider 表示 reflection_with_llm 找不到可用的 LLM Provider。
var ErrNoReflectionProvider = errors.New("chat: reflection summary requires an agent with an LLM provider")

func summarize(ctx context.Context, cfg *chatConfig, initiator, recipient *agent.ConversableAgent, history []types.Message) (string, error) {
	switch cfg.summaryMethod {
	case SummaryReflectionWithLLM:
		reflector := recipient
		if !reflector.HasProvider() {
			reflector = initiator
		}
		if !reflector.HasProvider() {
			return "", ErrNoReflectionProvider
		}
		summary, err := reflector.ReflectWithLLM(ctx, cfg.summaryPrompt, history)
		if err != nil {
			return "", fmt.Errorf("reflection summary: %w", err)
		}
		return summary, nil
	default:
		return lastMsgSummary(history), nil
	}
}

// lastMsgSummary 取最后一条消息的内容,并剥掉终止词。
func lastMsgSummary(history []types.Message) string {
	last, ok := types.LastMessage(history)
	if !ok {
		return ""
	}
	summary := strings.ReplaceAll(last.Content, "TERMINATE", "")
	return strings.TrimSpace(summary)
}
