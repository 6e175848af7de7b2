package ws

import (
	"encoding/json"

	"github.com/itsfuad/Poketab-Backend/internal/models"
)

// 线缆格式：入站 {"event","ack","data"}，出站 {"event","data"}，
// 应答 {"ack","data"}。fire-and-forget 事件不携带 ack 序号。
type inboundFrame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Event string `json:"event,omitempty"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: data})
}

func encodeAck(id int64, data any) ([]byte, error) {
	return json.Marshal(outboundFrame{Ack: &id, Data: data})
}

// 入站事件载荷。

type fetchKeyDataPayload struct {
	Key string `json:"key"`
	SSR bool   `json:"ssr"`
}

type createChatPayload struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	MaxUsers int    `json:"maxUsers"`
}

type joinChatPayload struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type newMessagePayload struct {
	Message models.Message `json:"message"`
	Key     string         `json:"key"`
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId"`
	Key       string `json:"key"`
	UserID    string `json:"userId"`
}

type reactPayload struct {
	MessageID string `json:"messageId"`
	Key       string `json:"key"`
	UserID    string `json:"userId"`
	React     string `json:"react"`
}

type seenPayload struct {
	UID       string `json:"uid"`
	Key       string `json:"key"`
	MessageID string `json:"messageId"`
}

type typingPayload struct {
	UID   string `json:"uid"`
	Key   string `json:"key"`
	Event string `json:"event"`
}

type locationPayload struct {
	Position models.Position `json:"position"`
	Key      string          `json:"key"`
	UID      string          `json:"uid"`
}

// 出站事件载荷。

type newMessageBroadcast struct {
	Message   models.Message `json:"message"`
	MessageID string         `json:"messageId"`
}

type linkPreviewBroadcast struct {
	MessageID string `json:"messageId"`
	Data      any    `json:"data"`
}

type deleteMessageBroadcast struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

type reactBroadcast struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	React     string `json:"react"`
}

type seenBroadcast struct {
	UID       string `json:"uid"`
	MessageID string `json:"messageId"`
}

type typingBroadcast struct {
	UID   string `json:"uid"`
	Event string `json:"event"`
}

type locationBroadcast struct {
	Position  models.Position `json:"position"`
	MessageID string          `json:"messageId"`
	UID       string          `json:"uid"`
}
