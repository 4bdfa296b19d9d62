package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentchat/persistence"
)

// =============================================================================
// 🔌 GET /v1/chats/{id}/stream — WebSocket 事件流
// =============================================================================

// wsWriteTimeout 是单个事件帧的写超时。
const wsWriteTimeout = 10 * time.Second

// inboundFrame 是客户端发来的控制帧。目前只支持 input：
//
//	{"type": "input", "content": "继续"}
type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// HandleStream 把一场会话的事件推送给 WebSocket 客户端。
//
// 进行中的会话先补发积压事件再实时推送；客户端可用 input 帧应答
// input_request。已归档的会话只推送一条 result 事件后正常关闭。
func (h *ChatHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	session := h.sessions.get(id)
	if session == nil {
		h.streamArchived(w, r, id)
		return
	}

	events, backlog, cancel := session.subscribe()
	defer cancel()

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("chat_id", id), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	// 读循环：接收 input 帧并转给等待输入的会话。其余帧忽略。
	// 连接断开时读出错，结束读循环即可，写循环由 ctx 终止。
	go func() {
		for {
			var frame inboundFrame
			if err := wsjson.Read(ctx, conn, &frame); err != nil {
				return
			}
			if frame.Type == "input" {
				if !session.provideInput(frame.Content) {
					h.logger.Debug("input dropped, chat not waiting",
						zap.String("chat_id", id))
				}
			}
		}
	}()

	for _, ev := range backlog {
		if err := writeEvent(ctx, conn, ev); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server closing")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "chat finished")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				return
			}
			if ev.Type == eventResult || ev.Type == eventError {
				conn.Close(websocket.StatusNormalClosure, "chat finished")
				return
			}
		}
	}
}

// streamArchived 为已归档会话建立短连接：单条 result 事件，随即正常关闭。
func (h *ChatHandler) streamArchived(w http.ResponseWriter, r *http.Request, id string) {
	result, err := h.store.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("chat %q not found", id))
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("chat_id", id), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ev := chatEvent{
		Type:   eventResult,
		ChatID: id,
		Result: result,
		Time:   time.Now(),
	}
	if err := writeEvent(r.Context(), conn, ev); err != nil {
		return
	}
	conn.Close(websocket.StatusNormalClosure, "chat finished")
}

// acceptOptions 按 CORS 配置放行跨域握手。
func (h *ChatHandler) acceptOptions() *websocket.AcceptOptions {
	origin := h.config().Server.AllowedOrigin
	if origin == "" {
		return nil
	}
	if origin == "*" {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Host
	}
	return &websocket.AcceptOptions{OriginPatterns: []string{host}}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev chatEvent) error {
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, ev)
}
