package mocks

import (
	"context"
	"sync"
)

// ScriptedHuman 按脚本应答人工输入请求,脚本耗尽后返回空串。
// 实现 agent.HumanInputProvider。
type ScriptedHuman struct {
	mu      sync.Mutex
	inputs  []string
	idx     int
	prompts []string
}

// NewScriptedHuman 创建脚本化人工输入源。
func NewScriptedHuman(inputs ...string) *ScriptedHuman {
	return &ScriptedHuman{inputs: inputs}
}

// ReadInput 消费脚本中的下一条输入并记录提示文本。
func (s *ScriptedHuman) ReadInput(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.idx >= len(s.inputs) {
		return "", nil
	}
	input := s.inputs[s.idx]
	s.idx++
	return input, nil
}

// Prompts 返回历次收到的提示文本。
func (s *ScriptedHuman) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Consumed 返回已消费的输入条数。
func (s *ScriptedHuman) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}
