package natsx

import (
	"encoding/json"
	"time"

	"VoiceGate/logger"

	"go.uber.org/zap"
)

const (
	BizConnected    = "connection.connected"
	BizAssociated   = "connection.associated"
	BizDisconnected = "connection.disconnected"
	BizDelivered    = "instruction.delivered"
)

// LifecycleEvent is the JSON body of every published event.
type LifecycleEvent struct {
	Event     string    `json:"event"`
	Node      string    `json:"node"`
	ClientID  string    `json:"clientId"`
	Usernames []string  `json:"usernames,omitempty"`
	At        time.Time `json:"at"`
}

// Sender is the publish side of NatsxClient.
type Sender interface {
	Publish(biz string, data []byte, hdr map[string]string) error
}

// EventPublisher mirrors registry lifecycle changes onto NATS subjects
// "<prefix>.connection.*" and "<prefix>.instruction.delivered".
// Publishing is best effort: failures are logged, never returned to the registry.
type EventPublisher struct {
	sender Sender
	node   string
	now    func() time.Time
}

// Routes returns the routes EventPublisher needs registered under prefix.
func Routes(prefix string) []NatsxRoute {
	out := make([]NatsxRoute, 0, 4)
	for _, biz := range []string{BizConnected, BizAssociated, BizDisconnected, BizDelivered} {
		out = append(out, NatsxRoute{Biz: biz, Subject: prefix + "." + biz})
	}
	return out
}

// NewEventPublisher registers the lifecycle routes on c and returns the publisher.
func NewEventPublisher(c *NatsxClient, prefix, node string) (*EventPublisher, error) {
	for _, r := range Routes(prefix) {
		if err := c.RegisterRoute(r); err != nil {
			return nil, err
		}
	}
	return newEventPublisher(c, node), nil
}

func newEventPublisher(s Sender, node string) *EventPublisher {
	return &EventPublisher{sender: s, node: node, now: time.Now}
}

func (p *EventPublisher) publish(biz, clientID string, usernames []string) {
	ev := LifecycleEvent{
		Event:     biz,
		Node:      p.node,
		ClientID:  clientID,
		Usernames: usernames,
		At:        p.now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Warn("[Events] marshal failed", zap.String("event", biz), zap.Error(err))
		return
	}
	if err := p.sender.Publish(biz, data, map[string]string{"node": p.node}); err != nil {
		logger.Warn("[Events] publish failed", zap.String("event", biz), zap.String("clientId", clientID), zap.Error(err))
	}
}

func (p *EventPublisher) Connected(clientID string) {
	p.publish(BizConnected, clientID, nil)
}

func (p *EventPublisher) Associated(username, clientID string) {
	p.publish(BizAssociated, clientID, []string{username})
}

func (p *EventPublisher) Disconnected(clientID string, usernames []string) {
	p.publish(BizDisconnected, clientID, usernames)
}

func (p *EventPublisher) Delivered(username, clientID string) {
	p.publish(BizDelivered, clientID, []string{username})
}
