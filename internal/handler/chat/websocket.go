package chat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mudler/xlog"

	chatService "github.com/zhouzirui/agentdesk/backend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 处理挂件的WebSocket连接，历史记录取自服务端存储
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId query parameter is required")
		return
	}

	found, err := h.chatSvc.Agent(agentID)
	if err != nil {
		status, message := errorStatus(err)
		utils.RespondError(w, status, message)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		xlog.Warn("websocket upgrade failed", "component", "websocket", "error", err)
		return
	}
	defer conn.Close()

	xlog.Info("websocket connected", "component", "websocket", "agent", agentID, "session", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go pingLoop(ctx, conn)

	send(conn, outgoingMessage{Type: "connected", SessionID: sessionID, Data: map[string]any{
		"agentId":   found.ID,
		"agentName": found.Name,
	}})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				xlog.Warn("websocket read error", "component", "websocket", "session", sessionID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.Type != "message" {
			sendError(conn, sessionID, "unsupported message type")
			continue
		}
		h.handleSocketTurn(ctx, conn, agentID, sessionID, msg.Content)
	}
}

func (h *Handler) handleSocketTurn(ctx context.Context, conn *websocket.Conn, agentID, sessionID, content string) {
	history, err := h.chatSvc.StoredHistory(ctx, agentID, sessionID)
	if err != nil {
		xlog.Warn("failed to load stored history", "component", "websocket", "session", sessionID, "error", err)
	}

	reply, err := h.chatSvc.Reply(ctx, agentID, chatService.Request{
		Message:   content,
		SessionID: sessionID,
		History:   history,
	})
	if err != nil {
		status, message := errorStatus(err)
		if status == http.StatusInternalServerError {
			xlog.Error("websocket turn failed", "component", "websocket", "session", sessionID, "error", err)
		}
		sendError(conn, sessionID, message)
		return
	}

	send(conn, outgoingMessage{Type: "reply", SessionID: sessionID, Data: reply})
}

func send(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		xlog.Warn("websocket write failed", "component", "websocket", "type", msg.Type, "error", err)
	}
}

func sendError(conn *websocket.Conn, sessionID, message string) {
	send(conn, outgoingMessage{Type: "error", SessionID: sessionID, Data: map[string]string{"error": message}})
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
