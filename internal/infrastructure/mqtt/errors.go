package mqtt

import "errors"

// Sentinel errors; match with errors.Is.
var (
	ErrDisabled         = errors.New("mqtt: query events disabled")
	ErrConnectionFailed = errors.New("mqtt: cannot reach broker")
	ErrNotConnected     = errors.New("mqtt: session is down")
	ErrPublishFailed    = errors.New("mqtt: event not published")
	ErrSubscribeFailed  = errors.New("mqtt: watch not established")
	ErrInvalidTopic     = errors.New("mqtt: empty topic")
	ErrInvalidEvent     = errors.New("mqtt: malformed query event")
)
