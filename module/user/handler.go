package user

import (
	"errors"
	"net/http"

	"VoiceGate/logger"
	"VoiceGate/middleware"
	"VoiceGate/module/user/service"
	"VoiceGate/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerReq struct {
	Username string `json:"username"`
}

type renameReq struct {
	NewUsername string `json:"new_username"`
}

type instructionReq struct {
	Content string `json:"content"`
}

type Handler struct {
	svc *service.UserService
}

func NewHandler(svc *service.UserService) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 挂载管理面与下发接口；IsAuth 的路由在配置了管理密钥时需要 admin token。
func (h *Handler) RegisterRoutes(rt middleware.Routes) {
	rt.POST("/register", h.Register, middleware.RouteOpt{})
	rt.POST("/send-instruction/:username", h.SendInstruction, middleware.RouteOpt{IsAuth: true})
	rt.GET("/test-send/:username", h.TestSend, middleware.RouteOpt{IsAuth: true})
	rt.GET("/users", h.List, middleware.RouteOpt{IsAuth: true})
	rt.PUT("/users/:username", h.Rename, middleware.RouteOpt{IsAuth: true})
	rt.DELETE("/users/:username", h.Delete, middleware.RouteOpt{IsAuth: true})
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.ErrValidation.WrapMsg("body must be {\"username\": string}"))
		return
	}
	u, err := h.svc.Register(c.Request.Context(), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "registered", "username": u.Username})
}

func (h *Handler) SendInstruction(c *gin.Context) {
	var req instructionReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, errs.ErrValidation.WrapMsg("body must be {\"content\": string}"))
			return
		}
	}
	receipt, err := h.svc.SendInstruction(c.Request.Context(), c.Param("username"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) TestSend(c *gin.Context) {
	receipt, err := h.svc.TestSend(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) List(c *gin.Context) {
	out, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Rename(c *gin.Context) {
	var req renameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.ErrValidation.WrapMsg("body must be {\"new_username\": string}"))
		return
	}
	username := c.Param("username")
	if err := h.svc.Rename(c.Request.Context(), username, req.NewUsername); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "User " + username + " updated"})
}

func (h *Handler) Delete(c *gin.Context) {
	username := c.Param("username")
	if err := h.svc.Delete(c.Request.Context(), username); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "User " + username + " deleted"})
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrNotConnected), errors.Is(err, errs.ErrConnectionInvalid):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	ce, _ := errs.AsCode(err)
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("[HTTP] request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"code": ce.Code, "kind": ce.Kind, "msg": ce.Msg})
}
