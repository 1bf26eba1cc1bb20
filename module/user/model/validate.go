package model

import (
	"strings"
	"sync"

	"VoiceGate/tools/errs"

	"github.com/go-playground/validator/v10"
)

const MaxUsernameLen = 64

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func v() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

type usernameInput struct {
	Username string `validate:"required,max=64,printascii,excludesall=/?#"`
}

// NormalizeUsername 去掉首尾空白并校验；用户名会出现在 URL path 中，因此不允许 / ? #。
func NormalizeUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if err := v().Struct(usernameInput{Username: name}); err != nil {
		return "", errs.ErrValidation.WrapMsg("invalid username", "username", raw, "reason", err.Error())
	}
	return name, nil
}
