package errs

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCodeError_IsMatchesOnCode(t *testing.T) {
	req := require.New(t)

	err := ErrNotFound.WrapMsg("lookup", "username", "alice")

	req.True(errors.Is(err, ErrNotFound))
	req.False(errors.Is(err, ErrNotConnected))
	req.Contains(err.Error(), "username=alice")
}

func TestStorage_WrapsDriverError(t *testing.T) {
	req := require.New(t)

	req.NoError(Storage(nil, "noop"))

	err := Storage(errors.New("disk full"), "set client id", "username", "bob")
	req.True(errors.Is(err, ErrStorage))

	ce, ok := AsCode(err)
	req.True(ok)
	req.Equal(KindStorage, ce.Kind)
	req.Contains(ce.Detail, "disk full")
}

func TestAsCode_UnknownIsInternal(t *testing.T) {
	req := require.New(t)

	ce, ok := AsCode(pkgerrors.New("boom"))
	req.False(ok)
	req.Equal(ServerInternalError, ce.Code)
	req.Equal(KindInternal, ce.Kind)
}

func TestErrPanic(t *testing.T) {
	req := require.New(t)

	req.NoError(ErrPanic(nil))
	err := ErrPanic("kaboom")
	ce, ok := AsCode(err)
	req.True(ok)
	req.Equal("kaboom", ce.Detail)
}
