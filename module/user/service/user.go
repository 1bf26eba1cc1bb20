package service

import (
	"context"
	"fmt"

	"VoiceGate/logger"
	usermodel "VoiceGate/module/user/model"
	"VoiceGate/service/chat"
	"VoiceGate/service/storage"
	"VoiceGate/tools/safe"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Listing 是 GET /users 的返回体。
type Listing struct {
	Users             []string          `json:"users"`
	ActiveConnections map[string]string `json:"active_connections"` // Directory 中 client_id 非空的行
	Live              []string          `json:"live"`               // 本进程当前打开的连接
}

// UserService 管理面：注册、列表、改名、删除、下发指令。
type UserService struct {
	dir  storage.Directory
	reg  *chat.Registry
	disp *chat.Dispatcher
}

func NewUserService(dir storage.Directory, reg *chat.Registry, disp *chat.Dispatcher) *UserService {
	safe.MustNotNil(dir, "directory")
	safe.MustNotNil(reg, "registry")
	safe.MustNotNil(disp, "dispatcher")
	return &UserService{dir: dir, reg: reg, disp: disp}
}

func (s *UserService) Register(ctx context.Context, rawUsername string) (usermodel.User, error) {
	username, err := usermodel.NormalizeUsername(rawUsername)
	if err != nil {
		return usermodel.User{}, err
	}
	u, err := s.dir.RegisterUsername(ctx, username)
	if err != nil {
		return usermodel.User{}, err
	}
	logger.Info("[User] registered", zap.String("username", username))
	return u, nil
}

func (s *UserService) List(ctx context.Context) (Listing, error) {
	rows, err := s.dir.ListUsers(ctx)
	if err != nil {
		return Listing{}, err
	}
	connected := lo.Filter(rows, func(u usermodel.User, _ int) bool { return u.Connected() })
	return Listing{
		Users: lo.Map(rows, func(u usermodel.User, _ int) string { return u.Username }),
		ActiveConnections: lo.SliceToMap(connected, func(u usermodel.User) (string, string) {
			return u.Username, u.ClientIDOrEmpty()
		}),
		Live: s.reg.Snapshot().Live,
	}, nil
}

// Rename 改 Directory 主键，并把内存里的关联一起迁过去。
func (s *UserService) Rename(ctx context.Context, oldName, rawNew string) error {
	newName, err := usermodel.NormalizeUsername(rawNew)
	if err != nil {
		return err
	}
	if newName == oldName {
		_, _, err := s.dir.LookupClientID(ctx, oldName)
		return err
	}
	if err := s.dir.RenameUsername(ctx, oldName, newName); err != nil {
		return err
	}
	s.reg.Rename(oldName, newName)
	logger.Info("[User] renamed", zap.String("from", oldName), zap.String("to", newName))
	return nil
}

// Delete 删除用户；若该用户当前在线，关闭其连接。
func (s *UserService) Delete(ctx context.Context, username string) error {
	if err := s.dir.DeleteUsername(ctx, username); err != nil {
		return err
	}
	clientID, ok := s.reg.Forget(username)
	if ok && s.reg.IsLive(clientID) {
		if err := s.reg.Disconnect(ctx, clientID); err != nil {
			logger.Warn("[User] disconnect after delete", zap.String("username", username), zap.String("clientId", clientID), zap.Error(err))
		}
	}
	logger.Info("[User] deleted", zap.String("username", username), zap.Bool("wasConnected", ok))
	return nil
}

func (s *UserService) SendInstruction(ctx context.Context, username, content string) (chat.Receipt, error) {
	return s.disp.Deliver(ctx, username, content)
}

// TestSend 发一条固定内容的指令，用于联调。
func (s *UserService) TestSend(ctx context.Context, username string) (chat.Receipt, error) {
	return s.disp.Deliver(ctx, username, TestInstruction(username))
}

func TestInstruction(username string) string {
	return fmt.Sprintf("test voice instruction for %s", username)
}
