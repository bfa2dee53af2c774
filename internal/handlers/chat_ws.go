// internal/handlers/chat_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/manager"
	"github.com/jason-s-yu/uno/internal/middleware"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the WebSocket subprotocol clients must request.
const Subprotocol = "uno"

// ClientMessage is one frame sent by a chat client. Type is a manager intent or "ping".
type ClientMessage struct {
	Type  string `json:"type"`
	Card  string `json:"card,omitempty"`
	Color string `json:"color,omitempty"`
	Mode  string `json:"mode,omitempty"`
	Token string `json:"token,omitempty"`
}

// stateMessage is the per-user render of a chat's session.
type stateMessage struct {
	Type     string         `json:"type"`
	State    *game.Snapshot `json:"state"`
	Hand     []models.Card  `json:"hand,omitempty"`
	Playable []models.Card  `json:"playable,omitempty"`
	Token    string         `json:"token,omitempty"`
}

// resultMessage answers the sender of a ClientMessage.
type resultMessage struct {
	Type string `json:"type"`
	manager.Result
	Error string `json:"error,omitempty"`
}

// ChatWSHandler upgrades the HTTP connection to WebSocket for a chat room.
// It authenticates the user, registers the connection with the hub, sends the current state
// and then reads actions until the client goes away.
func ChatWSHandler(logger *logrus.Logger, srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, err := strconv.ParseInt(r.PathValue("chatID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid chat id", http.StatusBadRequest)
			return
		}
		chat := models.ChatID(chatID)

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the uno subprotocol")
			return
		}

		user, err := srv.Sessions.AuthenticateJWT(tokenFromRequest(r))
		if err != nil {
			logger.WithError(err).WithField("chat", chat).Warn("websocket authentication failed")
			c.Close(InvalidAuthTokenError, "invalid auth token")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		conn := &ChatConnection{
			Conn:    c,
			User:    user,
			Chat:    chat,
			Cancel:  cancel,
			OutChan: make(chan interface{}, 16),
		}
		srv.Hub.Add(conn)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		conn.Write(logger, map[string]interface{}{"type": "hello", "user": user, "chat": chat})
		conn.Write(logger, srv.stateFor(chat, user.ID))

		go writePump(ctx, c, conn, logger)
		err = readPump(ctx, c, srv, conn, logger)

		srv.Hub.Remove(conn)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump decodes client frames and dispatches them until the connection fails.
func readPump(ctx context.Context, c *websocket.Conn, srv *Server, conn *ChatConnection, logger *logrus.Logger) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.Write(logger, errorMessage("invalid JSON format"))
			continue
		}
		if msg.Type == "ping" {
			conn.Write(logger, map[string]string{"type": "pong"})
			continue
		}

		action, err := toAction(conn, msg)
		if err != nil {
			conn.Write(logger, errorMessage(err.Error()))
			continue
		}

		res := srv.Manager.Dispatch(ctx, action)
		reply := resultMessage{Type: "result", Result: res}
		if res.Err != nil {
			reply.Error = res.Err.Error()
		}
		conn.Write(logger, reply)
		if res.Applied {
			srv.broadcast(conn.Chat)
		}
	}
}

func errorMessage(msg string) map[string]interface{} {
	return map[string]interface{}{"type": "error", "message": msg}
}

// toAction maps a client frame onto a manager action for conn's user and chat.
func toAction(conn *ChatConnection, msg ClientMessage) (manager.Action, error) {
	a := manager.Action{
		Chat:   conn.Chat,
		User:   conn.User,
		Intent: manager.Intent(msg.Type),
		Color:  models.Color(msg.Color),
		Token:  msg.Token,
	}
	if msg.Mode != "" {
		mode, err := game.ParseMode(msg.Mode)
		if err != nil {
			return a, err
		}
		a.Mode = mode
	}
	if a.Intent == manager.IntentPlay {
		c, err := models.ParseCard(msg.Card)
		if err != nil {
			return a, err
		}
		a.Card = c
	}
	return a, nil
}

// writePump drains conn.OutChan onto the socket and pings idle clients.
func writePump(ctx context.Context, c *websocket.Conn, conn *ChatConnection, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-conn.OutChan:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, c, msg)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("user", conn.User.ID).Warn("failed to write to websocket")
				conn.Cancel()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("user", conn.User.ID).Warn("ping failed, assuming disconnect")
				conn.Cancel()
				return
			}
		}
	}
}
