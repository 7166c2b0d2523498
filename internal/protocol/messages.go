package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Topics sent by peers to the relay.
const (
	TypeJoin                  = "JOIN"
	TypeRequestRoomStatus     = "REQUEST_ROOM_STATUS"
	TypeSendURL               = "SEND_URL"
	TypeSendTiming            = "SEND_TIMING"
	TypeRequestHold           = "REQUEST_HOLD"
	TypePlayAll               = "PLAY_ALL"
	TypePauseAll              = "PAUSE_ALL"
	TypePlaybackRateChangeAll = "PLAYBACK_RATE_CHANGE_ALL"
	TypeRequestReleaseAll     = "REQUEST_RELEASE_ALL"
	TypeRequestRelease        = "REQUEST_RELEASE"
	TypeRequestReleaseReady   = "REQUEST_RELEASE_READY"
	TypeRequestSettings       = "REQUEST_SETTINGS"
	TypeReplySettings         = "REPLY_SETTINGS"
	TypeAlive                 = "ALIVE"
)

// Topics delivered by the relay to peers. PREPARE_RELEASE and RELEASE may
// also be sent by a peer when addressed to another peer.
const (
	TypeMembers            = "MEMBERS"
	TypeRoomStatus         = "ROOM_STATUS"
	TypeReceiveURL         = "RECEIVE_URL"
	TypeReceiveTiming      = "RECEIVE_TIMING"
	TypeHold               = "HOLD"
	TypePlay               = "PLAY"
	TypePause              = "PAUSE"
	TypePlaybackRateChange = "PLAYBACK_RATE_CHANGE"
	TypeRelease            = "RELEASE"
	TypePrepareRelease     = "PREPARE_RELEASE"
	TypeSetBufferer        = "SET_BUFFERER"
	TypeError              = "ERROR"
)

var ErrEmptyPayload = errors.New("empty payload")

// Message is the envelope carried by the bus. From is stamped by the relay
// with the sender's connection id; To is set only on peer-addressed topics.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TimingPayload struct {
	Timing float64 `json:"timing"`
}

type HoldPayload struct {
	HolderID string `json:"holder_id"`
}

type URLPayload struct {
	URL string `json:"url"`
}

type RatePayload struct {
	Rate float64 `json:"rate"`
}

type RoomStatusPayload struct {
	IsBusy bool `json:"is_busy"`
}

// ReleaseReadyPayload asks the holder to acknowledge with an addressed
// RELEASE sent to ReplyTo.
type ReleaseReadyPayload struct {
	HolderID string `json:"holder_id"`
	ReplyTo  string `json:"reply_to"`
}

type Settings struct {
	IsPlaying    bool    `json:"is_playing"`
	PlaybackRate float64 `json:"playback_rate"`
}

type ReplySettingsPayload struct {
	RecipientID string   `json:"recipient_id"`
	Settings    Settings `json:"settings"`
}

type SetBuffererPayload struct {
	HolderID string `json:"holder_id"`
	HostID   string `json:"host_id"`
}

type Member struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	IsHost       bool   `json:"is_host"`
	CanChat      bool   `json:"can_chat"`
	CanVideo     bool   `json:"can_video"`
}

type MembersPayload struct {
	Members []Member `json:"members"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// New builds a message of the given type. A nil payload leaves Payload empty.
func New(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	msg.Payload = data

	return msg, nil
}

// Decode unmarshals the payload of msg into T.
func Decode[T any](msg Message) (T, error) {
	var v T
	if len(msg.Payload) == 0 {
		return v, fmt.Errorf("%s: %w", msg.Type, ErrEmptyPayload)
	}

	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal %s payload: %w", msg.Type, err)
	}

	return v, nil
}

// Addressed returns a copy of msg delivered only to connection id to.
func (m Message) Addressed(to string) Message {
	m.To = to
	return m
}
