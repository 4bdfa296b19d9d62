package chat

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/types"
)

// NestedSpec 描述嵌套队列中的一次内层会话,发起方固定为宿主 agent。
// Message 为空时:首个会话取外层会话的最后一条消息作为开场,
// 其余会话直接跳过。
type NestedSpec struct {
	Recipient *agent.ConversableAgent
	Message   string
	Options   []Option
}

// RegisterNestedChats 在宿主 agent 上注册嵌套会话。
//
// 当 trigger 命中的发送者给宿主发消息时,宿主不直接回复,而是按顺序
// 执行内层会话队列(总结依次作为 carryover 传递),把最后一次内层会话
// 的总结作为给外层的回复。内层消息只出现在宿主与内层参与者的账本里,
// 不会泄漏到外层会话。
func RegisterNestedChats(host *agent.ConversableAgent, trigger agent.TriggerFunc, specs []NestedSpec) {
	host.RegisterReply(trigger, func(ctx context.Context, a *agent.ConversableAgent, messages []types.Message, sender *agent.ConversableAgent) (bool, *types.Message, error) {
		last, _ := types.LastMessage(messages)

		queue := make([]ChatSpec, 0, len(specs))
		for i, spec := range specs {
			message := spec.Message
			if message == "" {
				if i != 0 {
					continue
				}
				message = last.Content
			}
			queue = append(queue, ChatSpec{
				Initiator: a,
				Recipient: spec.Recipient,
				Message:   message,
				Options:   spec.Options,
			})
		}
		if len(queue) == 0 {
			return false, nil, nil
		}

		results, err := InitiateChats(ctx, queue)
		if err != nil {
			return true, nil, fmt.Errorf("nested chats: %w", err)
		}

		reply := types.NewChatMessage(types.RoleAssistant, a.Name(), results[len(results)-1].Summary)
		return true, &reply, nil
	})
}
