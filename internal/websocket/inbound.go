package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

var ErrInvalidFormat = errors.New("invalid message format")

// Inbound is the closed set of decoded client frames: PingFrame,
// SubscribeFrame, UnsubscribeFrame and UnknownFrame.
type Inbound interface {
	inbound()
}

type PingFrame struct{}

type SubscribeFrame struct {
	Target Target
}

type UnsubscribeFrame struct {
	Target Target
}

// UnknownFrame is a well-formed frame with an unrecognised type.
type UnknownFrame struct {
	Type string
}

func (PingFrame) inbound()        {}
func (SubscribeFrame) inbound()   {}
func (UnsubscribeFrame) inbound() {}
func (UnknownFrame) inbound()     {}

type TargetKind int

const (
	TargetInvalid TargetKind = iota
	TargetNotifications
	TargetResource
	TargetTable
)

// Target is what a subscribe/unsubscribe frame points at.
type Target struct {
	Kind TargetKind
	// Channel echoes the client's channel name ("receipt" or "resource").
	Channel    string
	ResourceID string
	Table      string
}

const (
	channelNotifications = "notifications"
	channelReceipt       = "receipt"
	channelResource      = "resource"
)

// flexibleID accepts ids sent either as JSON strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type inboundEnvelope struct {
	Type       string     `json:"type"`
	Channel    string     `json:"channel"`
	ReceiptID  flexibleID `json:"receiptId"`
	ResourceID flexibleID `json:"resourceId"`
	Table      string     `json:"table"`
}

// DecodeInbound parses one client frame. It returns ErrInvalidFormat when the
// bytes are not a JSON object.
func DecodeInbound(data []byte) (Inbound, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidFormat
	}

	var env inboundEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, ErrInvalidFormat
	}

	switch MessageType(env.Type) {
	case MessageTypePing:
		return PingFrame{}, nil
	case MessageTypeSubscribe:
		return SubscribeFrame{Target: env.target()}, nil
	case MessageTypeUnsubscribe:
		return UnsubscribeFrame{Target: env.target()}, nil
	default:
		return UnknownFrame{Type: env.Type}, nil
	}
}

func (e inboundEnvelope) target() Target {
	switch e.Channel {
	case channelNotifications:
		return Target{Kind: TargetNotifications, Channel: e.Channel}
	case channelReceipt, channelResource:
		id := string(e.ReceiptID)
		if id == "" {
			id = string(e.ResourceID)
		}
		if id != "" {
			return Target{Kind: TargetResource, Channel: e.Channel, ResourceID: id}
		}
	}
	if e.Table != "" {
		return Target{Kind: TargetTable, Table: e.Table}
	}
	return Target{Kind: TargetInvalid}
}
