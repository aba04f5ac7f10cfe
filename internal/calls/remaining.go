// Package calls implements the call lifecycle and the read-side projection
// of calls with their remaining time.
package calls

import (
	"time"

	"machine-alert-backend/internal/model"
)

// MoleDurationMinutes is the fixed duration of a mold-change call.
const MoleDurationMinutes = 30

// RemainingSeconds is the time left before a pending call expires, in whole
// seconds. It is derived from the stored fields and now on every read, never
// stored. Terminal calls have nothing left.
func RemainingSeconds(call *model.Call, now time.Time) int64 {
	if call.Status.Terminal() {
		return 0
	}
	return remaining(call.CallTime, call.Duration, now)
}

func remaining(callTime time.Time, durationMinutes int, now time.Time) int64 {
	elapsed := int64(now.Sub(callTime) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	left := int64(durationMinutes)*60 - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// Overdue reports whether call is stored as Pendiente but has no time left.
func Overdue(call *model.Call, now time.Time) bool {
	return call.Status == model.StatusPending && remaining(call.CallTime, call.Duration, now) == 0
}

// ProjectedStatus is the status a reader should see: an overdue pending call
// shows as Expirada even before the sweep persists it.
func ProjectedStatus(call *model.Call, now time.Time) model.CallStatus {
	if Overdue(call, now) {
		return model.StatusExpired
	}
	return call.Status
}
