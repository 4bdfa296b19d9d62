// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

/*
包 chat 提供 agent 之间的会话编排。

# 概述

chat 把 agent 包的单步回复能力组织成完整会话:两 agent 对话、
顺序会话队列、并行会话、嵌套会话与多人群聊。每次会话产出一个
Result,包含完整历史、总结、成本视图与人工输入记录。

# 两 agent 会话

InitiateChat 由发起方向接收方发出开场消息,双方轮流生成回复,
直到出现终止消息、自动回复计数触顶、人工退出或到达 WithMaxTurns
上限。开场消息可通过 WithCarryover 携带先前会话的上下文。

# 总结

  - last_msg:取最后一条消息内容(剥掉终止词)
  - reflection_with_llm:让接收方(或发起方)的模型复盘整段会话,
    指令可用 WithSummaryPrompt 替换

# 会话队列

  - InitiateChats:顺序执行,每段总结自动作为后续会话的 carryover
  - InitiateChatsParallel:按 Prerequisites 构成的依赖图并发执行,
    前置会话的总结作为本会话的 carryover

# 嵌套会话

RegisterNestedChats 把一条会话队列挂在宿主 agent 的回复管线上:
外层消息触发时先完成全部内层会话,把最后一段总结作为外层回复。
内层消息不会出现在外层历史中。

# 群聊

GroupChat 维护成员列表与共享消息记录,GroupChatManager 作为可会话
agent 主持群聊:向它发起会话即开始,按 round_robin / random /
manual / auto 策略逐轮挑选发言人并把发言广播给其他成员。
auto 策略使用管理者的 LLM 和成员描述挑选下一位发言人。
*/
package chat
