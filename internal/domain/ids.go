// Package domain contains entity identifiers and lifecycle states, no logic.
package domain

import "errors"

const (
	MaxRoomIDLen = 64
	MaxUserIDLen = 64
)

var (
	ErrRoomIDInvalid = errors.New("room id empty or too long")
	ErrUserIDInvalid = errors.New("user id empty or too long")
)

type (
	RoomID      string
	UserID      string
	TransportID string
	ProducerID  string
	ConsumerID  string
)

func (id RoomID) Validate() error {
	if len(id) == 0 || len(id) > MaxRoomIDLen {
		return ErrRoomIDInvalid
	}
	return nil
}

func (id UserID) Validate() error {
	if len(id) == 0 || len(id) > MaxUserIDLen {
		return ErrUserIDInvalid
	}
	return nil
}

// Direction tells which way media flows over a transport, from the
// client's point of view: send transports carry producers, recv
// transports carry consumers.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func (d Direction) Valid() bool {
	return d == DirectionSend || d == DirectionRecv
}

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaVideo
}

type TransportState string

const (
	TransportCreated   TransportState = "created"
	TransportConnected TransportState = "connected"
	TransportClosed    TransportState = "closed"
)

type ConsumerState string

const (
	ConsumerPaused ConsumerState = "paused"
	ConsumerActive ConsumerState = "active"
	ConsumerClosed ConsumerState = "closed"
)
