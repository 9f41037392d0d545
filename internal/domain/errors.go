package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidMessage = errors.New("invalid message")
	ErrNotReceiver    = errors.New("acknowledger is not the receiver")
	ErrNotIdentified  = errors.New("session has not joined")
	ErrAlreadyBound   = errors.New("session already bound to another user")
	ErrIdentity       = errors.New("identity does not match authenticated user")
	ErrSendTimeout    = errors.New("send queue full")
	ErrSessionClosed  = errors.New("session closed")
	ErrUnknownHandle  = errors.New("unknown connection handle")
	ErrInvalidEvent   = errors.New("invalid event")
)
