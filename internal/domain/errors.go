package domain

import "errors"

var (
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrStreamMessageNotFound = errors.New("stream message not found")
)
