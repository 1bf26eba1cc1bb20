package chat

import (
	"context"
	"strings"
	"time"

	"VoiceGate/logger"
	"VoiceGate/service/storage"
	"VoiceGate/tools/errs"

	"go.uber.org/zap"
)

const StatusMessageSent = "Message sent"

// Receipt is returned for a successful delivery.
type Receipt struct {
	Status   string              `json:"status"`
	ClientID string              `json:"-"`
	Envelope InstructionEnvelope `json:"-"`
}

// Dispatcher routes instructions to the connection currently reachable as a
// username. The Directory decides which clientId a username belongs to; the
// Registry decides whether that clientId is live.
type Dispatcher struct {
	reg *Registry
	dir storage.Directory
	now func() time.Time
}

func NewDispatcher(reg *Registry, dir storage.Directory) *Dispatcher {
	return &Dispatcher{reg: reg, dir: dir, now: time.Now}
}

// Deliver sends content to username. Errors carry one of NotFound, NotConnected,
// ConnectionInvalid, StorageError or ValidationError.
func (d *Dispatcher) Deliver(ctx context.Context, username, content string) (Receipt, error) {
	if strings.TrimSpace(username) == "" {
		return Receipt{}, errs.ErrValidation.WrapMsg("username is required")
	}

	persistedID, ok, err := d.dir.LookupClientID(ctx, username)
	if err != nil {
		logger.Info("[Dispatch] lookup failed", zap.String("username", username), zap.Error(err))
		return Receipt{}, err
	}
	if !ok {
		logger.Info("[Dispatch] user not connected", zap.String("username", username))
		return Receipt{}, errs.ErrNotConnected.WrapMsg("", "username", username)
	}

	if memID, found := d.reg.ClientID(username); !found || memID != persistedID {
		logger.Info("[Dispatch] repairing registry from directory",
			zap.String("username", username),
			zap.String("registry", memID),
			zap.String("directory", persistedID))
		d.reg.RepairAssociation(username, persistedID)
	}

	clientID := persistedID
	if clientID == "" || !d.reg.IsLive(clientID) {
		logger.Info("[Dispatch] connection invalid", zap.String("username", username), zap.String("clientId", clientID))
		return Receipt{}, errs.ErrConnectionInvalid.WrapMsg("", "username", username, "clientId", clientID)
	}

	env := NewInstruction(content, d.now())
	if err := d.reg.SendTo(clientID, env); err != nil {
		logger.Warn("[Dispatch] send failed", zap.String("username", username), zap.String("clientId", clientID), zap.Error(err))
		return Receipt{}, err
	}

	logger.Info("[Dispatch] delivered", zap.String("username", username), zap.String("clientId", clientID))
	d.reg.notifyDelivered(username, clientID)
	return Receipt{Status: StatusMessageSent, ClientID: clientID, Envelope: env}, nil
}
