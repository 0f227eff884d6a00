package domain

import "errors"

var (
	ErrIdentityRequired = errors.New("identity is required")
	ErrInvalidLimits    = errors.New("invalid usage limits")
	ErrStoreContention  = errors.New("usage store contention: too many concurrent updates")
)

func IsIdentityRequiredError(err error) bool {
	return errors.Is(err, ErrIdentityRequired)
}

func IsStoreContentionError(err error) bool {
	return errors.Is(err, ErrStoreContention)
}
