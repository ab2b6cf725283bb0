package device

import (
	"fmt"
	"time"

	apperrors "github.com/mytad/game-auth/pkg/errors"
)

// BanError carries the ban that blocked a request so handlers can set the marker cookies
type BanError struct {
	Ban Ban
}

func (e *BanError) Error() string {
	return fmt.Sprintf("device banned by %s", e.Ban.ID)
}

// Denied wraps ban in the DEVICE_BANNED error returned to clients
func Denied(ban Ban) *apperrors.Error {
	err := apperrors.Wrap(&BanError{Ban: ban}, apperrors.ErrCodeDeviceBanned, "This device has been banned").
		WithDetail("is_permanent", ban.IsPermanent)
	if ban.BannedUntil != nil {
		err.WithDetail("banned_until", ban.BannedUntil.UTC().Format(time.RFC3339))
	}
	return err
}

// BanFromError returns the ban inside err, if any
func BanFromError(err error) (Ban, bool) {
	var be *BanError
	if apperrors.As(err, &be) {
		return be.Ban, true
	}
	return Ban{}, false
}
