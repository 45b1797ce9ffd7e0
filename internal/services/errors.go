// Package services defines the business logic for device sessions, the chat
// conversation they hold and its bot replies. This file centralizes the
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMessageNotFound indicates that a view index is out of range or a
	// record id does not belong to the session.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidReaction is returned for a blank or over-long reaction value.
	ErrInvalidReaction = errors.New("reaction must be a non-blank emoji of at most 16 runes")

	// ErrWrongMode is returned when a multi-user operation is invoked on a
	// single-user session.
	ErrWrongMode = errors.New("operation requires a multi-user session")

	// ErrUnknownUser is returned by the sidebar lookup when the name has never
	// sent a record in the session.
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvalidMode is returned when a session is created with a mode other
	// than "single" or "multi".
	ErrInvalidMode = errors.New(`mode must be "single" or "multi"`)

	// ErrReservedName is returned when a multi-user session claims the name
	// its bot records are sent under.
	ErrReservedName = errors.New(`the name "bot" is reserved`)

	// ErrTooLong is returned when a message exceeds the configured rune limit.
	ErrTooLong = errors.New("message too long")

	// ErrPersistedStateCorrupt marks a snapshot slot whose JSON could not be
	// decoded. It never reaches callers: the slot is discarded and replaced by
	// its empty default.
	ErrPersistedStateCorrupt = errors.New("persisted state corrupt")
)
