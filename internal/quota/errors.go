package quota

import "errors"

var (
	// ErrUnknownPlan means the plan key resolved to no definition.
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrRecordMissing means no quota record exists for the user; the
	// caller must initialize before consuming quota.
	ErrRecordMissing = errors.New("quota record missing")

	// ErrExpired means the quota window has lapsed and must be
	// re-initialized before further consumption.
	ErrExpired = errors.New("quota window expired")

	// ErrUnknownQuotaType means the quota type names no known counter.
	ErrUnknownQuotaType = errors.New("unknown quota type")

	// ErrUserMissing means the user the quota belongs to does not exist.
	ErrUserMissing = errors.New("user not found")
)
