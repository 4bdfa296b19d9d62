// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

/*
Package agent implements the conversable agent at the core of AgentChat.

# Overview

A ConversableAgent is a named participant in a conversation. It keeps an
independent message ledger and a consecutive-auto-reply counter for every
peer it talks to, and produces replies through a pluggable pipeline:

	┌────────────────────────────────────────────────────────┐
	│                  GenerateReply(ctx, msgs, sender)      │
	├────────────────────────────────────────────────────────┤
	│  1. human-input gate (ALWAYS / NEVER / TERMINATE)      │
	│  2. registered custom reply functions (RegisterReply)  │
	│  3. tool-call execution reply                          │
	│  4. LLM reply (provider + retry + cost tracking)       │
	│  5. default auto reply                                 │
	└────────────────────────────────────────────────────────┘

A nil reply from GenerateReply means the conversation has terminated.

# Human input modes

	NEVER      fully automatic; termination predicate or the auto-reply
	           ceiling ends the conversation
	TERMINATE  a human is consulted only when the termination predicate
	           fires or the ceiling is reached; empty input on a
	           termination message ends the chat, typed text becomes the
	           reply and resets the counter
	ALWAYS     a human is consulted before every reply; Enter falls
	           through to the automatic pipeline, "exit" ends the chat

# Tools

RegisterForLLM exposes a tool schema on outgoing LLM requests.
RegisterForExecution registers the function that actually runs.
The two usually live on different agents: the assistant suggests a
call, its counterpart executes it and replies with a tool message.
RegisterFunction wires both sides at once.

# Cost

Every LLM call records its token usage into the agent's cost.Tracker,
with a tokenizer-based estimate as fallback when the endpoint omits
usage. An optional cost.BudgetManager is consulted before each call.
*/
package agent
