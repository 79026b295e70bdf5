package hitcount

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a referenced counter, hit or block entry does not exist.
	ErrNotFound = errors.New("hitcount: not found")

	// ErrValidation marks malformed visitor input. The resolver recovers from it locally.
	ErrValidation = errors.New("hitcount: invalid input")

	// ErrPermission is returned when an administrative operation is attempted without privilege.
	ErrPermission = errors.New("hitcount: permission denied")

	// ErrConfiguration is returned for unusable settings, such as a time span with no unit.
	ErrConfiguration = errors.New("hitcount: invalid configuration")
)

// storeErr maps gorm's not-found error onto ErrNotFound and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
