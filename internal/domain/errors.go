package domain

import "errors"

// Client-input errors: reported to the caller, never fatal.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerNotFound      = errors.New("peer not found in room")
	ErrTransportNotFound = errors.New("transport not found")
	ErrConsumerNotFound  = errors.New("consumer not found")
)

// ErrEngineRejected marks an engine-side creation/connect failure or
// timeout. The caller may retry the whole operation; we never retry
// engine calls ourselves.
var ErrEngineRejected = errors.New("media engine rejected operation")

// ErrNotCapable is the capability-mismatch outcome of consume. It is a
// normal empty-effect result, not a failure.
var ErrNotCapable = errors.New("cannot consume producer with given capabilities")

// ErrEngineFatal means the engine process handle died. All router and
// transport state is invalid; the service must shut down.
var ErrEngineFatal = errors.New("media engine died")
