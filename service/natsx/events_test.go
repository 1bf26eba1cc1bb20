package natsx

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type published struct {
	biz  string
	data []byte
	hdr  map[string]string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeSender) Publish(biz string, data []byte, hdr map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{biz: biz, data: data, hdr: hdr})
	return f.err
}

func TestRoutes(t *testing.T) {
	req := require.New(t)

	rs := Routes("voicegate")
	req.Len(rs, 4)
	req.Equal(NatsxRoute{Biz: BizConnected, Subject: "voicegate.connection.connected"}, rs[0])
	req.Equal("voicegate.instruction.delivered", rs[3].Subject)
}

func TestEventPublisher_Payloads(t *testing.T) {
	req := require.New(t)
	s := &fakeSender{}
	p := newEventPublisher(s, "node-1")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	p.Connected("A1")
	p.Associated("alice", "A1")
	p.Disconnected("A1", []string{"alice"})
	p.Delivered("alice", "A1")

	req.Len(s.msgs, 4)
	req.Equal(BizAssociated, s.msgs[1].biz)
	req.Equal("node-1", s.msgs[1].hdr["node"])

	var ev LifecycleEvent
	req.NoError(json.Unmarshal(s.msgs[2].data, &ev))
	req.Equal(BizDisconnected, ev.Event)
	req.Equal("A1", ev.ClientID)
	req.Equal([]string{"alice"}, ev.Usernames)
	req.True(fixed.Equal(ev.At))
}

func TestEventPublisher_SwallowsErrors(t *testing.T) {
	s := &fakeSender{err: errors.New("nats down")}
	p := newEventPublisher(s, "node-1")

	require.NotPanics(t, func() { p.Connected("A1") })
	require.Len(t, s.msgs, 1)
}

func TestRegisterRoute_Invalid(t *testing.T) {
	c := &NatsxClient{routes: map[string]NatsxRoute{}}
	require.Error(t, c.RegisterRoute(NatsxRoute{Biz: "x"}))
	require.NoError(t, c.RegisterRoute(NatsxRoute{Biz: "x", Subject: "y"}))

	err := c.Publish("missing", nil, nil)
	require.Error(t, err)
}
