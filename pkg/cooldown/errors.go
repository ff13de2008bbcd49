package cooldown

import "errors"

// ErrTimerPending is returned when a cooldown entry is attempted while a
// reactivation timer is still outstanding.
var ErrTimerPending = errors.New("cooldown: reactivation timer already pending")
