package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"VoiceGate/logger"
	"VoiceGate/module/user/model"
	"VoiceGate/tools/decode"
	"VoiceGate/tools/errs"
	"VoiceGate/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// session is the read-side state of one connection. Only the read loop touches it.
type session struct {
	client    *WsClient
	sessionID string
	state     SessionState
	username  string
}

// HandleWS ===== WebSocket 入口 =====
// 升级连接 -> Registry.Connect -> 启动写协程 -> 读循环；读循环退出时 Release。
func (s *Server) HandleWS(c *gin.Context) {
	clientID := strings.TrimSpace(c.Param("clientId"))
	if clientID == "" {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail("clientId is required"))
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 非 WebSocket 请求 / 握手失败，Upgrader 已写回 HTTP 错误
		logger.Info("[WS] upgrade failed", zap.String("clientId", clientID), zap.Error(err))
		return
	}

	client := NewWsClient(clientID, ws, s.opts.Client)
	sess := &session{client: client, state: StateConnected}
	sess.sessionID = s.reg.Connect(clientID, client)
	safe.SafeGo("ws-writer:"+clientID, client.writePump)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		rctx, rcancel := context.WithTimeout(context.Background(), s.opts.ReleaseTimeout)
		defer rcancel()
		if err := s.reg.Release(rctx, clientID, sess.sessionID); err != nil {
			logger.Warn("[WS] release failed", zap.String("clientId", clientID), zap.Error(err))
		}
		_ = client.Close()
	}()

	s.readLoop(ctx, sess)
}

func (s *Server) readLoop(ctx context.Context, sess *session) {
	ws := sess.client.ws
	ws.SetReadLimit(s.opts.MaxMessageSize)
	pongWait := sess.client.opts.PongWait
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("[WS] read error", zap.String("clientId", sess.client.ClientID), zap.Error(err))
			} else {
				logger.Debug("[WS] closed", zap.String("clientId", sess.client.ClientID), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		if err := safe.Recover(func() { s.handleFrame(ctx, sess, data) }); err != nil {
			logger.Error("[WS] frame handler panic", zap.String("clientId", sess.client.ClientID), zap.Error(err))
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, sess *session, data []byte) {
	frame, err := decode.ParseFrame(data)
	if err != nil {
		logger.Debug("[WS] drop malformed frame", zap.String("clientId", sess.client.ClientID), zap.Error(err))
		return
	}

	switch frame.Type() {
	case TypeRegister:
		s.handleRegister(ctx, sess, frame)
	case TypeHeartbeat:
		_ = sess.client.Post(NewHeartbeat(s.now()))
	default:
		logger.Debug("[WS] ignore frame", zap.String("clientId", sess.client.ClientID), zap.String("type", frame.Type()))
	}
}

// handleRegister 只接受 Directory 中已登记的用户名；被拒绝时回一条 system 帧，连接保持。
func (s *Server) handleRegister(ctx context.Context, sess *session, frame decode.Frame) {
	clientID := sess.client.ClientID
	rf, err := decode.DecodeMap[RegisterFrame](frame)
	if err != nil {
		s.reject(sess, "malformed register message")
		return
	}
	username, err := model.NormalizeUsername(rf.Username)
	if err != nil {
		s.reject(sess, "invalid username")
		return
	}

	if _, _, err := s.dir.LookupClientID(ctx, username); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			logger.Info("[WS] register for unknown username", zap.String("clientId", clientID), zap.String("username", username))
			s.reject(sess, fmt.Sprintf("username %q is not registered", username))
			return
		}
		logger.Error("[WS] register lookup failed", zap.String("clientId", clientID), zap.Error(err))
		s.reject(sess, "registration failed, try again")
		return
	}

	if err := s.reg.Associate(ctx, username, clientID); err != nil {
		logger.Warn("[WS] associate failed", zap.String("clientId", clientID), zap.String("username", username), zap.Error(err))
		s.reject(sess, "registration failed, try again")
		return
	}
	sess.state = StateRegistered
	sess.username = username
	logger.Info("[WS] registered", zap.String("clientId", clientID), zap.String("username", username), zap.Stringer("state", sess.state))
}

func (s *Server) reject(sess *session, msg string) {
	if err := sess.client.Post(NewSystem(msg)); err != nil {
		logger.Debug("[WS] system reply dropped", zap.String("clientId", sess.client.ClientID), zap.Error(err))
	}
}
