package agent

import (
	"strings"

	"github.com/BaSui01/agentchat/types"
)

// TerminationFunc 判断一条消息是否意味着会话应当结束。
type TerminationFunc func(msg types.Message) bool

// ContainsTerminate 是默认终止判定:
// 去掉尾部空白与标点后,内容以 "TERMINATE" 结尾即判定终止。
func ContainsTerminate(msg types.Message) bool {
	return TerminationOnWord("TERMINATE")(msg)
}

// TerminationOnWord 返回按给定结束词判定的终止函数。
// 判定对尾部空白和常见句末标点不敏感。
func TerminationOnWord(word string) TerminationFunc {
	return func(msg types.Message) bool {
		content := strings.TrimRightFunc(msg.Content, func(r rune) bool {
			switch r {
			case ' ', '\t', '\n', '\r', '.', '!', '?', ',', ';', ':', '。', '！', '？':
				return true
			}
			return false
		})
		return strings.HasSuffix(content, word)
	}
}

// TerminationNever 永不终止。
func TerminationNever(types.Message) bool { return false }

// TerminationAny 任一条件命中即终止。
func TerminationAny(fns ...TerminationFunc) TerminationFunc {
	return func(msg types.Message) bool {
		for _, fn := range fns {
			if fn != nil && fn(msg) {
				return true
			}
		}
		return false
	}
}

// TerminationAll 全部条件命中才终止。
func TerminationAll(fns ...TerminationFunc) TerminationFunc {
	return func(msg types.Message) bool {
		if len(fns) == 0 {
			return false
		}
		for _, fn := range fns {
			if fn == nil || !fn(msg) {
				return false
			}
		}
		return true
	}
}
