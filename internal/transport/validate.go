package transport

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

// Validate runs struct-tag validation on a decoded inbound payload. Any
// non-nil error here is a BadRequest (spec §7) and the command is rejected
// before it ever reaches the Session's command queue.
func Validate(payload any) error {
	validatorOnce.Do(func() {
		validatorInst = validator.New()
	})
	return validatorInst.Struct(payload)
}
