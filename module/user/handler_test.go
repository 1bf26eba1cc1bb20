package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"VoiceGate/middleware"
	"VoiceGate/module/user/service"
	"VoiceGate/service/chat"
	"VoiceGate/service/storage/memory"
	"VoiceGate/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recHandle struct{ sent []any }

func (h *recHandle) SendJSON(v any) error { h.sent = append(h.sent, v); return nil }
func (h *recHandle) Close() error         { return nil }

type api struct {
	r   *gin.Engine
	reg *chat.Registry
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := memory.NewDirectory()
	reg := chat.NewRegistry(dir)
	t.Cleanup(reg.Close)
	svc := service.NewUserService(dir, reg, chat.NewDispatcher(reg, dir))
	r := gin.New()
	NewHandler(svc).RegisterRoutes(middleware.Routes{R: r})
	return &api{r: r, reg: reg}
}

func (a *api) do(method, path, body string) (int, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestHandler_RegisterAndSend(t *testing.T) {
	a := newAPI(t)

	code, _ := a.do(http.MethodPost, "/register", `{"username":"alice"}`)
	require.Equal(t, http.StatusOK, code)

	code, body := a.do(http.MethodPost, "/register", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(errs.KindAlreadyExists), body["kind"])

	code, body = a.do(http.MethodPost, "/send-instruction/alice", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(errs.KindNotConnected), body["kind"])

	h := &recHandle{}
	a.reg.Connect("A1", h)
	require.NoError(t, a.reg.Associate(context.Background(), "alice", "A1"))

	code, body = a.do(http.MethodPost, "/send-instruction/alice", `{"content":"hi"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"status": "Message sent"}, body)
	require.Len(t, h.sent, 1)

	code, _ = a.do(http.MethodGet, "/test-send/alice", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, h.sent, 2)
}

func TestHandler_ErrorMapping(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(http.MethodPost, "/send-instruction/ghost", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(errs.KindNotFound), body["kind"])
	assert.EqualValues(t, errs.NotFoundError, body["code"])

	code, body = a.do(http.MethodPost, "/register", `{"username":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(errs.KindValidation), body["kind"])

	code, _ = a.do(http.MethodPost, "/register", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Equal(t, http.StatusInternalServerError, StatusOf(errs.ErrStorage))
	assert.Equal(t, http.StatusNotFound, StatusOf(errs.ErrConnectionInvalid.WrapMsg("x")))
}

func TestHandler_AdminRoutes(t *testing.T) {
	a := newAPI(t)
	a.do(http.MethodPost, "/register", `{"username":"alice"}`)

	code, body := a.do(http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"alice"}, body["users"])

	code, _ = a.do(http.MethodPut, "/users/alice", `{"new_username":"alicia"}`)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodPut, "/users/alice", `{"new_username":"x"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(http.MethodDelete, "/users/alicia", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodDelete, "/users/alicia", "")
	assert.Equal(t, http.StatusNotFound, code)
}
