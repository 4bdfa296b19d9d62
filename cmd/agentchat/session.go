package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/types"
)

// =============================================================================
// 会话事件
// =============================================================================

// 事件类型。message 是会话中的一条新消息，input_request 表示某个 agent
// 正在等待人工输入，result 携带最终产物并结束流，error 表示会话失败。
const (
	eventMessage      = "message"
	eventInputRequest = "input_request"
	eventResult       = "result"
	eventError        = "error"
)

// chatEvent 是推送给流式订阅者的事件。
type chatEvent struct {
	Type    string         `json:"type"`
	ChatID  string         `json:"chat_id"`
	Agent   string         `json:"agent,omitempty"`
	Prompt  string         `json:"prompt,omitempty"`
	Message *types.Message `json:"message,omitempty"`
	Result  *chat.Result   `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Time    time.Time      `json:"time"`
}

// subscriberBuffer 是单个订阅者的事件缓冲大小。
// 写满说明订阅者消费过慢，事件被丢弃并不中断会话。
const subscriberBuffer = 64

// =============================================================================
// 进行中的会话
// =============================================================================

// chatSession 维护一场进行中会话的事件广播与人工输入中继。
// 会话由 POST /v1/chats 的请求 goroutine 驱动；WebSocket 订阅者
// 通过 subscribe 收事件，通过 provideInput 应答 input_request。
type chatSession struct {
	id string

	mu          sync.Mutex
	subscribers map[chan chatEvent]struct{}
	backlog     []chatEvent
	finished    bool

	inputCh chan string
	done    chan struct{}
}

func newChatSession(id string) *chatSession {
	return &chatSession{
		id:          id,
		subscribers: make(map[chan chatEvent]struct{}),
		inputCh:     make(chan string, 1),
		done:        make(chan struct{}),
	}
}

// publish 记录事件并广播给所有订阅者。订阅者缓冲写满时丢弃该订阅者
// 本次事件，backlog 仍然保留完整序列。
func (s *chatSession) publish(ev chatEvent) {
	ev.ChatID = s.id
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.backlog = append(s.backlog, ev)
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Type == eventResult || ev.Type == eventError {
		s.finished = true
		close(s.done)
	}
}

// subscribe 注册订阅者并返回此前的事件快照。cancel 必须调用。
func (s *chatSession) subscribe() (<-chan chatEvent, []chatEvent, func()) {
	ch := make(chan chatEvent, subscriberBuffer)

	s.mu.Lock()
	snapshot := make([]chatEvent, len(s.backlog))
	copy(snapshot, s.backlog)
	if !s.finished {
		s.subscribers[ch] = struct{}{}
	}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
	}
	return ch, snapshot, cancel
}

// provideInput 投递一条人工输入。没有待决请求或重复应答时返回 false。
func (s *chatSession) provideInput(text string) bool {
	select {
	case s.inputCh <- text:
		return true
	default:
		return false
	}
}

// complete 发布最终结果并结束事件流。
func (s *chatSession) complete(result *chat.Result) {
	s.publish(chatEvent{Type: eventResult, Result: result})
}

// fail 发布失败并结束事件流。
func (s *chatSession) fail(err error) {
	s.publish(chatEvent{Type: eventError, Error: err.Error()})
}

// tapMessages 广播触发某个 agent 本轮回复的最新一条入站消息。
// 由注册到双方 agent 的透传回复函数调用，透传函数自身不接管回复。
func (s *chatSession) tapMessages(agentName string, messages []types.Message) {
	if len(messages) == 0 {
		return
	}
	msg := messages[len(messages)-1]
	s.publish(chatEvent{Type: eventMessage, Agent: agentName, Message: &msg})
}

// =============================================================================
// 人工输入中继
// =============================================================================

// sessionHumanInput 把 agent 的人工输入请求转成 input_request 事件，
// 并阻塞等待 WebSocket 订阅者应答。实现 agent.HumanInputProvider。
type sessionHumanInput struct {
	session   *chatSession
	agentName string
	mode      string
	collector *metrics.Collector
}

func (h *sessionHumanInput) ReadInput(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	h.session.publish(chatEvent{
		Type:   eventInputRequest,
		Agent:  h.agentName,
		Prompt: prompt,
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text := <-h.session.inputCh:
		if h.collector != nil {
			h.collector.RecordHumanInput(h.mode, time.Since(start))
		}
		return text, nil
	}
}

// =============================================================================
// 会话注册表
// =============================================================================

// sessionRegistry 按 chat ID 索引进行中的会话。
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*chatSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*chatSession)}
}

// open 注册一场新会话；ID 冲突说明同名会话正在进行。
func (r *sessionRegistry) open(id string) (*chatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		return nil, fmt.Errorf("chat %q is already running", id)
	}
	s := newChatSession(id)
	r.sessions[id] = s
	return s, nil
}

// get 返回进行中的会话，不存在时返回 nil。
func (r *sessionRegistry) get(id string) *chatSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// remove 注销会话。
func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// len 返回进行中的会话数。
func (r *sessionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
