package agent_test

import (
	"testing"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/types"
	"github.com/stretchr/testify/assert"
)

func TestTerminationOnWord(t *testing.T) {
	isTerm := agent.TerminationOnWord("TERMINATE")

	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{"bare word", "TERMINATE", true},
		{"trailing period", "TERMINATE.", true},
		{"trailing sentence", "All done. TERMINATE!", true},
		{"trailing newline", "TERMINATE\n", true},
		{"trailing spaces", "TERMINATE   ", true},
		{"chinese punctuation", "任务完成 TERMINATE。", true},
		{"chinese exclamation", "TERMINATE！", true},
		{"mid sentence", "TERMINATE the process now", false},
		{"lowercase", "terminate", false},
		{"empty", "", false},
		{"substring only", "DO NOT TERMINATED", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := types.Message{Role: types.RoleAssistant, Content: tc.content}
			assert.Equal(t, tc.want, isTerm(msg))
		})
	}
}

func TestTerminationCombinators(t *testing.T) {
	done := agent.TerminationOnWord("DONE")
	stop := agent.TerminationOnWord("STOP")

	msgDone := types.Message{Content: "ok DONE"}
	msgStop := types.Message{Content: "ok STOP"}
	msgNeither := types.Message{Content: "keep going"}

	assert.False(t, agent.TerminationNever(msgDone))

	any := agent.TerminationAny(done, stop)
	assert.True(t, any(msgDone))
	assert.True(t, any(msgStop))
	assert.False(t, any(msgNeither))

	all := agent.TerminationAll(done, agent.TerminationOnWord("ok DONE"))
	assert.True(t, all(msgDone))
	assert.False(t, all(msgStop))
}
