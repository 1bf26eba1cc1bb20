package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Kind is the stable identifier returned to callers next to the numeric code.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindAlreadyExists     Kind = "AlreadyExists"
	KindNotFound          Kind = "NotFound"
	KindNotConnected      Kind = "NotConnected"
	KindConnectionInvalid Kind = "ConnectionInvalid"
	KindStorage           Kind = "StorageError"
	KindInternal          Kind = "InternalError"
	KindUnauthorized      Kind = "Unauthorized"
)

const (
	ValidationError      = 1001
	AlreadyExistsError   = 1002
	NotFoundError        = 1003
	NotConnectedError    = 1004
	ConnectionInvalidErr = 1005
	StorageError         = 1006
	UnauthorizedError    = 1401
	ServerInternalError  = 1500
)

var (
	ErrValidation        = NewCodeError(ValidationError, KindValidation, "invalid request")
	ErrAlreadyExists     = NewCodeError(AlreadyExistsError, KindAlreadyExists, "username already exists")
	ErrNotFound          = NewCodeError(NotFoundError, KindNotFound, "user not found")
	ErrNotConnected      = NewCodeError(NotConnectedError, KindNotConnected, "user not connected")
	ErrConnectionInvalid = NewCodeError(ConnectionInvalidErr, KindConnectionInvalid, "user connection invalid")
	ErrStorage           = NewCodeError(StorageError, KindStorage, "storage error")
	ErrUnauthorized      = NewCodeError(UnauthorizedError, KindUnauthorized, "unauthorized")
	ErrInternal          = NewCodeError(ServerInternalError, KindInternal, "internal error")
)

func NewCodeError(code int, kind Kind, msg string) CodeError {
	return CodeError{
		Code: code,
		Kind: kind,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Kind   Kind   `json:"kind"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Kind:   e.Kind,
		Msg:    e.Msg,
		Detail: d,
	}
}

// WrapMsg returns a copy carrying msg and kv pairs in Detail, with a stack trace.
func (e CodeError) WrapMsg(msg string, kv ...any) error {
	ret := e
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if ret.Detail == "" {
			ret.Detail = detail
		} else {
			ret.Detail += ", " + detail
		}
	}
	return pkgerrors.WithStack(ret)
}

// Is matches on code only, so a detailed copy still satisfies errors.Is(err, ErrNotFound).
func (e CodeError) Is(target error) bool {
	var t CodeError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

const initialCapacity = 3

func (e CodeError) Error() string {
	v := make([]string, 0, initialCapacity)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

// Storage wraps a driver error as StorageError. nil stays nil.
func Storage(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(ErrStorage.WithDetail(toString(msg, append(kv, "err", err.Error()))))
}

// AsCode extracts the CodeError from err. Anything else maps to ErrInternal.
func AsCode(err error) (CodeError, bool) {
	var ce CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return ErrInternal.WithDetail(err.Error()), false
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
