package websocket

import (
	"encoding/json"
	"time"
)

// MessageType is the discriminator carried in the "type" field of every frame.
type MessageType string

// Outbound (server -> client) message types
const (
	MessageTypeConnected     MessageType = "connected"
	MessageTypeSubscribed    MessageType = "subscribed"
	MessageTypeUnsubscribed  MessageType = "unsubscribed"
	MessageTypeNotification  MessageType = "notification"
	MessageTypeResourceEvent MessageType = "resource_event"
	MessageTypeChange        MessageType = "change"
	MessageTypePong          MessageType = "pong"
	MessageTypeShutdown      MessageType = "shutdown"
	MessageTypeError         MessageType = "error"
)

// Inbound (client -> server) message types
const (
	MessageTypePing        MessageType = "ping"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
)

// String returns the string representation of the MessageType
func (mt MessageType) String() string {
	return string(mt)
}

// Outbound is implemented by every server-to-client message. Values are
// built once and never mutated after being handed to the Registry.
type Outbound interface {
	MessageType() MessageType
}

func encode(msg Outbound) ([]byte, error) {
	return json.Marshal(msg)
}

type ConnectedMessage struct {
	Type          MessageType `json:"type"`
	Message       string      `json:"message"`
	Authenticated bool        `json:"authenticated"`
	UserID        *string     `json:"userId"`
}

func (m ConnectedMessage) MessageType() MessageType { return m.Type }

// NewConnectedMessage creates the greeting sent right after registration.
func NewConnectedMessage(userID string) ConnectedMessage {
	msg := ConnectedMessage{
		Type:    MessageTypeConnected,
		Message: "Connected to realtime server",
	}
	if userID != "" {
		msg.Authenticated = true
		msg.UserID = &userID
	}
	return msg
}

// SubscriptionMessage acknowledges a subscribe or unsubscribe request.
type SubscriptionMessage struct {
	Type      MessageType `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Table     string      `json:"table,omitempty"`
	ReceiptID string      `json:"receiptId,omitempty"`
}

func (m SubscriptionMessage) MessageType() MessageType { return m.Type }

func NewSubscribedMessage(channel, table, receiptID string) SubscriptionMessage {
	return SubscriptionMessage{Type: MessageTypeSubscribed, Channel: channel, Table: table, ReceiptID: receiptID}
}

func NewUnsubscribedMessage(channel, table, receiptID string) SubscriptionMessage {
	return SubscriptionMessage{Type: MessageTypeUnsubscribed, Channel: channel, Table: table, ReceiptID: receiptID}
}

type NotificationMessage struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data"`
}

func (m NotificationMessage) MessageType() MessageType { return m.Type }

// NewNotificationMessage wraps a persisted notification record.
func NewNotificationMessage(record interface{}) NotificationMessage {
	return NotificationMessage{Type: MessageTypeNotification, Data: record}
}

type ResourceEventMessage struct {
	Type      MessageType       `json:"type"`
	ReceiptID string            `json:"receiptId"`
	Event     ResourceEventKind `json:"event"`
	Data      interface{}       `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func (m ResourceEventMessage) MessageType() MessageType { return m.Type }

func NewResourceEventMessage(resourceID string, event ResourceEventKind, data interface{}, at time.Time) ResourceEventMessage {
	return ResourceEventMessage{
		Type:      MessageTypeResourceEvent,
		ReceiptID: resourceID,
		Event:     event,
		Data:      data,
		Timestamp: at.UTC(),
	}
}

// ChangeMessage carries a raw datastore change on the legacy table channel.
type ChangeMessage struct {
	Type    MessageType `json:"type"`
	Table   string      `json:"table"`
	Payload interface{} `json:"payload"`
}

func (m ChangeMessage) MessageType() MessageType { return m.Type }

func NewChangeMessage(table string, payload interface{}) ChangeMessage {
	return ChangeMessage{Type: MessageTypeChange, Table: table, Payload: payload}
}

type PongMessage struct {
	Type MessageType `json:"type"`
}

func (m PongMessage) MessageType() MessageType { return m.Type }

func NewPongMessage() PongMessage {
	return PongMessage{Type: MessageTypePong}
}

type ShutdownMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func (m ShutdownMessage) MessageType() MessageType { return m.Type }

func NewShutdownMessage(message string) ShutdownMessage {
	return ShutdownMessage{Type: MessageTypeShutdown, Message: message}
}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func (m ErrorMessage) MessageType() MessageType { return m.Type }

// NewErrorMessage creates an error message
func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: MessageTypeError, Message: message}
}

// ResourceEventKind enumerates the resource-channel events.
type ResourceEventKind string

const (
	EventResourceUpdated      ResourceEventKind = "resource_updated"
	EventResourceClosed       ResourceEventKind = "resource_closed"
	EventItemAdded            ResourceEventKind = "item_added"
	EventItemRemoved          ResourceEventKind = "item_removed"
	EventItemUpdated          ResourceEventKind = "item_updated"
	EventParticipantAdded     ResourceEventKind = "participant_added"
	EventParticipantRemoved   ResourceEventKind = "participant_removed"
	EventParticipantClosed    ResourceEventKind = "participant_closed"
	EventParticipantRequested ResourceEventKind = "participant_requested"
	EventParticipantApproved  ResourceEventKind = "participant_approved"
	EventParticipantRejected  ResourceEventKind = "participant_rejected"
	EventOwnerTransferred     ResourceEventKind = "owner_transferred"
)

// IsValid checks if the kind is one of the known resource events
func (k ResourceEventKind) IsValid() bool {
	switch k {
	case EventResourceUpdated, EventResourceClosed,
		EventItemAdded, EventItemRemoved, EventItemUpdated,
		EventParticipantAdded, EventParticipantRemoved, EventParticipantClosed,
		EventParticipantRequested, EventParticipantApproved, EventParticipantRejected,
		EventOwnerTransferred:
		return true
	default:
		return false
	}
}
