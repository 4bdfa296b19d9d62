package chat

import (
	"github.com/BaSui01/agentchat/cost"
	"github.com/BaSui01/agentchat/types"
)

// Result 是一次会话的产物。
type Result struct {
	// ChatID 是会话的唯一标识。
	ChatID string `json:"chat_id"`
	// History 是发起方视角的完整消息历史。
	History []types.Message `json:"history"`
	// Summary 是按配置的总结方式生成的会话总结。
	Summary string `json:"summary"`
	// Cost 是会话结束时双方 agent 的累计用量视图。
	Cost cost.Breakdown `json:"cost"`
	// HumanInputs 是会话期间双方收集的人工输入,含空输入。
	HumanInputs []string `json:"human_inputs,omitempty"`
}

// LastMessage 返回历史中的最后一条消息。
func (r *Result) LastMessage() (types.Message, bool) {
	return types.LastMessage(r.History)
}
