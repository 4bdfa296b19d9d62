// =============================================================================
// AgentChat 会话编排
// =============================================================================
// 两个 agent 之间的完整会话:开场消息(可携带上下文)、轮流回复、
// 终止判定、总结与成本汇总。
// =============================================================================

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/cost"
	"github.com/BaSui01/agentchat/internal/ctxkeys"
	"github.com/BaSui01/agentchat/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InitiateChat 由 initiator 向 recipient 发起一次会话并驱动到结束。
//
// 默认会先清空双方的既有历史与自动回复计数。开场消息发出后双方轮流
// 生成回复,任何一方返回 nil(终止消息、计数触顶或人工退出)即结束;
// 设置了 WithMaxTurns 时到达轮数上限也会结束。
func InitiateChat(ctx context.Context, initiator, recipient *agent.ConversableAgent, opts ...Option) (*Result, error) {
	if initiator == nil || recipient == nil {
		return nil, fmt.Errorf("chat: initiator and recipient are required")
	}

	cfg := defaultChatConfig()
	if err := cfg.apply(opts); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	chatID := cfg.chatID
	if chatID == "" {
		chatID = uuid.NewString()
	}
	ctx = ctxkeys.WithChatID(ctx, chatID)
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	if !cfg.keepHistory {
		initiator.ResetPeer(recipient.Name())
		recipient.ResetPeer(initiator.Name())
	}

	logger := initiator.Logger().With(
		zap.String("chat_id", chatID),
		zap.String("initiator", initiator.Name()),
		zap.String("recipient", recipient.Name()),
	)
	if !cfg.silent {
		logger.Info("chat started", zap.Int("max_turns", cfg.maxTurns))
	}

	outbound := types.NewChatMessage(types.RoleUser, initiator.Name(), composeInitialMessage(cfg))

	for turn := 0; cfg.maxTurns <= 0 || turn < cfg.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("chat %s: %w", chatID, err)
		}

		if turn > 0 {
			reply, err := initiator.GenerateReply(ctx, initiator.History(recipient.Name()), recipient)
			if err != nil {
				return nil, fmt.Errorf("chat %s: %s reply: %w", chatID, initiator.Name(), err)
			}
			if reply == nil {
				break
			}
			outbound = *reply
		}

		initiator.Send(outbound, recipient)
		logTurn(logger, cfg, turn, initiator.Name(), outbound)

		reply, err := recipient.GenerateReply(ctx, recipient.History(initiator.Name()), initiator)
		if err != nil {
			return nil, fmt.Errorf("chat %s: %s reply: %w", chatID, recipient.Name(), err)
		}
		if reply == nil {
			break
		}
		recipient.Send(*reply, initiator)
		logTurn(logger, cfg, turn, recipient.Name(), *reply)
	}

	history := initiator.History(recipient.Name())
	summary, err := summarize(ctx, cfg, initiator, recipient, history)
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", chatID, err)
	}

	result := &Result{
		ChatID:      chatID,
		History:     history,
		Summary:     summary,
		Cost:        cost.Gather(initiator.Tracker(), recipient.Tracker()),
		HumanInputs: append(initiator.TakeHumanInputs(), recipient.TakeHumanInputs()...),
	}
	if !cfg.silent {
		logger.Info("chat finished",
			zap.Int("messages", len(result.History)),
			zap.Float64("total_cost", result.Cost.Total.TotalCost))
	}
	return result, nil
}

// composeInitialMessage 把 carryover 以 Context 段落拼进开场消息。
func composeInitialMessage(cfg *chatConfig) string {
	if len(cfg.carryover) == 0 {
		return cfg.message
	}
	return cfg.message + "\nContext: \n" + strings.Join(cfg.carryover, "\n")
}

func logTurn(logger *zap.Logger, cfg *chatConfig, turn int, speaker string, msg types.Message) {
	if cfg.silent {
		return
	}
	logger.Info("chat message",
		zap.Int("turn", turn),
		zap.String("speaker", speaker),
		zap.String("role", string(msg.Role)),
		zap.String("content", preview(msg.Content)),
		zap.Int("tool_calls", len(msg.ToolCalls)))
}

func preview(content string) string {
	const max = 120
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}
