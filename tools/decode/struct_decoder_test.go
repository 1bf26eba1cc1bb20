package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type registerPayload struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	ClientID  string `json:"clientId"`
	Timestamp int64  `json:"timestamp"`
}

func TestParseFrame_AndDecode(t *testing.T) {
	req := require.New(t)

	f, err := ParseFrame([]byte(`{"type":"register","username":"alice","clientId":"A1","timestamp":1700000000123}`))
	req.NoError(err)
	req.Equal("register", f.Type())

	p, err := DecodeMap[registerPayload](f)
	req.NoError(err)
	req.Equal("alice", p.Username)
	req.Equal("A1", p.ClientID)
	req.Equal(int64(1700000000123), p.Timestamp)
}

func TestParseFrame_Rejects(t *testing.T) {
	req := require.New(t)

	_, err := ParseFrame([]byte(`not json`))
	req.Error(err)

	_, err = ParseFrame([]byte(`null`))
	req.Error(err)

	f, err := ParseFrame([]byte(`{"type":42}`))
	req.NoError(err)
	req.Equal("", f.Type())
}

func TestDecodeMap_WeakNumbers(t *testing.T) {
	req := require.New(t)

	p, err := DecodeMap[registerPayload](map[string]any{"username": "bob", "timestamp": "42"})
	req.NoError(err)
	req.Equal("bob", p.Username)
	req.Equal(int64(42), p.Timestamp)

	_, err = DecodeMap[registerPayload](nil)
	req.Error(err)
}
