package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/itsfuad/Poketab-Backend/internal/chat"
	"github.com/itsfuad/Poketab-Backend/internal/linkpreview"
	"github.com/itsfuad/Poketab-Backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const handlerTimeout = 5 * time.Second

// Dispatcher 是连接级事件分发器。所有 handler 在连接建立时就已接线，
// 依据当前会话状态行事，而不是在入场时临时注册闭包——
// 连接离开后再加入另一个房间也不会残留过期的 handler。
type Dispatcher struct {
	svc     *chat.Service
	hub     *Hub
	preview *linkpreview.Fetcher
}

func NewDispatcher(svc *chat.Service, hub *Hub, preview *linkpreview.Fetcher) *Dispatcher {
	return &Dispatcher{svc: svc, hub: hub, preview: preview}
}

// dispatch 处理一帧入站事件。任何 handler 的失败都被限制在本连接内，
// 不允许波及其它连接的处理。
func (d *Dispatcher) dispatch(c *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("conn", c.ID).Msg("handler panic")
		}
	}()
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch frame.Event {
	case "fetchKeyData":
		d.handleFetchKeyData(ctx, c, frame)
	case "createChat":
		d.handleCreateChat(ctx, c, frame)
	case "joinChat":
		d.handleJoinChat(ctx, c, frame)
	case "leaveChat":
		d.handleLeaveChat(ctx, c, frame)
	case "newMessage":
		d.handleNewMessage(c, frame)
	case "deleteMessage":
		d.handleDeleteMessage(c, frame)
	case "react":
		d.handleReact(c, frame)
	case "seen":
		d.handleSeen(c, frame)
	case "typing":
		d.handleTyping(c, frame)
	case "location":
		d.handleLocation(c, frame)
	}
}

func (d *Dispatcher) ack(c *Client, frame inboundFrame, data any) {
	if frame.Ack == nil {
		return
	}
	b, err := encodeAck(*frame.Ack, data)
	if err != nil {
		return
	}
	c.Send(b)
}

func (d *Dispatcher) handleFetchKeyData(ctx context.Context, c *Client, frame inboundFrame) {
	var p fetchKeyDataPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	resp := d.svc.FetchKeyData(ctx, c.ID, p.Key, p.SSR)
	if resp.Success && !p.SSR {
		if state, _, _, _ := c.session(); state != StateAdmitted {
			c.setWaiting(p.Key)
		}
	}
	d.ack(c, frame, resp)
}

func (d *Dispatcher) handleCreateChat(ctx context.Context, c *Client, frame inboundFrame) {
	var p createChatPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	resp, after := d.svc.CreateChat(ctx, c.ID, p.Name, p.Avatar, p.MaxUsers)
	if resp.Success {
		c.setAdmitted(resp.Key, resp.UserID, p.Name)
	}
	d.ack(c, frame, resp)
	if after != nil {
		after()
	}
}

func (d *Dispatcher) handleJoinChat(ctx context.Context, c *Client, frame inboundFrame) {
	var p joinChatPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	resp, after := d.svc.JoinChat(ctx, c.ID, p.Key, p.Name, p.Avatar)
	if resp.Success {
		c.setAdmitted(resp.Key, resp.UserID, p.Name)
	}
	d.ack(c, frame, resp)
	if after != nil {
		after()
	}
}

func (d *Dispatcher) handleLeaveChat(ctx context.Context, c *Client, frame inboundFrame) {
	state, key, uid, name := c.session()
	if state != StateUnattached {
		d.svc.Exit(ctx, c.ID, key, name, uid)
		c.setUnattached()
	}
	d.ack(c, frame, nil)
}

// handleDisconnect 由读泵在连接关闭后调用，与显式 leaveChat
// 走同一条清理路径——断连只是 leave 的退化情形。
func (d *Dispatcher) handleDisconnect(c *Client) {
	state, key, uid, name := c.session()
	if state == StateUnattached {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	log.Info().Str("conn", c.ID).Msg("socket disconnected")
	d.svc.Exit(ctx, c.ID, key, name, uid)
	c.setUnattached()
}

func (d *Dispatcher) handleNewMessage(c *Client, frame inboundFrame) {
	var p newMessagePayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	messageID := uuid.NewString()
	d.hub.EmitExcept(chat.ChatChannel(p.Key), c.ID, "newMessage", newMessageBroadcast{Message: p.Message, MessageID: messageID})
	d.ack(c, frame, messageID)
	metrics.MessagesTotal.Inc()

	if p.Message.Type == "text" && d.preview != nil {
		// 链接预览异步抓取，结果对房间内所有人可见。
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), d.preview.Timeout())
			defer cancel()
			meta, ok := d.preview.FromText(ctx, p.Message.Message)
			if !ok {
				return
			}
			d.hub.Emit(chat.ChatChannel(p.Key), "linkPreviewData", linkPreviewBroadcast{MessageID: messageID, Data: meta})
		}()
	}
}

func (d *Dispatcher) handleDeleteMessage(c *Client, frame inboundFrame) {
	var p deleteMessagePayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	// 删除要回显给包括发送者在内的所有人，保持共享状态一致。
	d.hub.Emit(chat.ChatChannel(p.Key), "deleteMessage", deleteMessageBroadcast{MessageID: p.MessageID, UserID: p.UserID})
}

func (d *Dispatcher) handleReact(c *Client, frame inboundFrame) {
	var p reactPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	d.hub.Emit(chat.ChatChannel(p.Key), "react", reactBroadcast{MessageID: p.MessageID, UserID: p.UserID, React: p.React})
}

func (d *Dispatcher) handleSeen(c *Client, frame inboundFrame) {
	var p seenPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	d.hub.EmitExcept(chat.ChatChannel(p.Key), c.ID, "seen", seenBroadcast{UID: p.UID, MessageID: p.MessageID})
}

func (d *Dispatcher) handleTyping(c *Client, frame inboundFrame) {
	var p typingPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	d.hub.EmitExcept(chat.ChatChannel(p.Key), c.ID, "typing", typingBroadcast{UID: p.UID, Event: p.Event})
}

func (d *Dispatcher) handleLocation(c *Client, frame inboundFrame) {
	var p locationPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return
	}
	d.hub.Emit(chat.ChatChannel(p.Key), "location", locationBroadcast{Position: p.Position, MessageID: uuid.NewString(), UID: p.UID})
}
