package models

// ChatKey 对应存储中 chat:<key> 哈希记录。
type ChatKey struct {
	KeyID       string `json:"keyId"`
	ActiveUsers int    `json:"activeUsers"`
	MaxUsers    int    `json:"maxUsers"`
	Admin       string `json:"admin"`
	CreatedAt   int64  `json:"createdAt"`
}

// User 是房间内一名成员的公开身份信息。
type User struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	UID      string `json:"uid"`
	JoinedAt int64  `json:"joinedAt,omitempty"`
}

// Message 是客户端提交的聊天消息，服务端只转发不落库。
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	UID     string `json:"uid,omitempty"`
	ReplyTo string `json:"replyTo,omitempty"`
}

// Position 是位置共享事件携带的坐标。
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// ServerMessage 是系统通知（加入/离开提示）。
type ServerMessage struct {
	Text string `json:"text"`
	ID   string `json:"id"`
}
