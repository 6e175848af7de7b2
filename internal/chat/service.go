package chat

import (
	"context"
	"errors"
	"time"

	"github.com/itsfuad/Poketab-Backend/internal/keygen"
	"github.com/itsfuad/Poketab-Backend/internal/metrics"
	"github.com/itsfuad/Poketab-Backend/internal/models"
	"github.com/itsfuad/Poketab-Backend/internal/store"
	"github.com/itsfuad/Poketab-Backend/internal/validate"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store 是 Presence 存储的抽象，由 internal/store 的 Redis 实现承接。
// 计数与成员集的变更必须在实现侧保证原子性；JoinChat 的容量复核
// 与计数自增必须是同一个原子步骤。
type Store interface {
	Healthy(ctx context.Context) error
	Kick()
	Exists(ctx context.Context, key string) (bool, error)
	KeyData(ctx context.Context, key string) (active, max int, err error)
	AllUsers(ctx context.Context, key string) (map[string]models.User, error)
	CreateChat(ctx context.Context, chat models.ChatKey, user models.User, connID string) error
	JoinChat(ctx context.Context, key string, user models.User, connID string) (active, max int, err error)
	ExitUser(ctx context.Context, key, uid, connID string) (left int, existed bool, err error)
	DeleteChatKey(ctx context.Context, key string) error
	SocketIdentity(ctx context.Context, connID string) (name, uid string, ok bool, err error)
}

// Emitter 是广播扇出的抽象，由 ws.Hub 实现。
type Emitter interface {
	Subscribe(channel, connID string)
	Unsubscribe(channel, connID string)
	Emit(channel, event string, data any)
	EmitExcept(channel, exceptConnID, event string, data any)
	EmitTo(connID, event string, data any)
}

// ChatChannel 返回房间频道名，已入场成员订阅此频道。
func ChatChannel(key string) string { return "chat:" + key }

// WaitingChannel 返回等候室频道名，旁观者订阅此频道，不占用容量。
func WaitingChannel(key string) string { return "waitingRoom:" + key }

// Response 是请求/应答型操作的统一 ack 载荷，
// 失败时 Users 为空映射、MaxUsers 为 null。
type Response struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"statusCode,omitempty"`
	Icon       string                 `json:"icon,omitempty"`
	Users      map[string]models.User `json:"users"`
	MaxUsers   *int                   `json:"maxUsers"`
	Key        string                 `json:"key,omitempty"`
	UserID     string                 `json:"userId,omitempty"`
}

func failure(kind error, message string) Response {
	return Response{
		Success:    false,
		Message:    message,
		StatusCode: StatusCode(kind),
		Icon:       icon(kind),
		Users:      map[string]models.User{},
		MaxUsers:   nil,
	}
}

func serverMessage(text string) models.ServerMessage {
	return models.ServerMessage{Text: text, ID: uuid.NewString()}
}

// ServerNotice 是 server_message 事件的载荷，Type 取 join / leave。
type ServerNotice struct {
	Message models.ServerMessage `json:"message"`
	Type    string               `json:"type"`
}

// Service 实现房间成员协议的状态机：fetch / create / join / exit。
// 广播通过注入的 Emitter 扇出，读写通过注入的 Store 落地。
type Service struct {
	store   Store
	emitter Emitter
}

func NewService(store Store, emitter Emitter) *Service {
	return &Service{store: store, emitter: emitter}
}

// FetchKeyData 只读查询房间状态。非 ssr 请求会把连接订阅到等候室，
// 浏览与等候从不消耗房间容量。
func (s *Service) FetchKeyData(ctx context.Context, connID, key string, ssr bool) Response {
	// 非法输入在触达存储之前就拒绝。
	if !validate.Key(key) {
		return failure(ErrInvalidInput, "Invalid Key")
	}
	if err := s.store.Healthy(ctx); err != nil {
		log.Warn().Err(err).Msg("fetchKeyData store unreachable")
		s.store.Kick()
		return failure(ErrStoreUnavailable, "Database disconnected")
	}
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("fetchKeyData exists")
		return failure(ErrInternal, "Server Error")
	}
	if !exists {
		return failure(ErrNotFound, "Key Does Not Exist")
	}
	active, max, err := s.store.KeyData(ctx, key)
	if err != nil {
		return failure(ErrNotFound, "Key Data Not Found")
	}
	// 这里的满员判定只是提示性的；权威校验在入场时再做一次。
	if active >= max {
		return failure(ErrCapacityExceeded, "Key Full")
	}
	users, err := s.store.AllUsers(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("fetchKeyData users")
		return failure(ErrInternal, "Server Error")
	}
	if !ssr {
		s.emitter.Subscribe(WaitingChannel(key), connID)
	}
	return Response{Success: true, Message: "Available", StatusCode: 200, Users: users, MaxUsers: &max}
}

// CreateChat 分配唯一 key 与成员 id，创建者作为唯一成员原子落库。
// 返回的 after 在 ack 发出之后执行广播，保持应答先于通知的次序。
func (s *Service) CreateChat(ctx context.Context, connID, name, avatar string, maxUsers int) (Response, func()) {
	if !validate.Name(name) {
		return failure(ErrInvalidInput, "Invalid name"), nil
	}
	if !validate.Avatar(avatar) {
		return failure(ErrInvalidInput, "Invalid Avatar"), nil
	}
	if !validate.MaxUsers(maxUsers) {
		return failure(ErrInvalidInput, "Invalid Max Users"), nil
	}
	if err := s.store.Healthy(ctx); err != nil {
		log.Warn().Err(err).Msg("createChat store unreachable")
		s.store.Kick()
		return failure(ErrStoreUnavailable, "Database disconnected"), nil
	}
	key, err := keygen.Generate(func(k string) (bool, error) {
		return s.store.Exists(ctx, k)
	})
	if err != nil {
		log.Error().Err(err).Msg("createChat keygen")
		return failure(ErrInternal, "Chat Creation Failed"), nil
	}
	uid := uuid.NewString()
	now := time.Now().UnixMilli()
	me := models.User{Name: name, Avatar: avatar, UID: uid, JoinedAt: now}
	record := models.ChatKey{KeyID: key, ActiveUsers: 1, MaxUsers: maxUsers, Admin: uid, CreatedAt: now}

	if err := s.store.CreateChat(ctx, record, me, connID); err != nil {
		log.Error().Err(err).Str("key", key).Msg("createChat store")
		return failure(ErrInternal, "Chat Creation Failed"), nil
	}

	// 频道切换只在落库成功后进行，失败的请求不触碰订阅状态。
	s.emitter.Subscribe(ChatChannel(key), connID)
	s.emitter.Unsubscribe(WaitingChannel(key), connID)
	metrics.ChatsCreatedTotal.Inc()
	metrics.ActiveChats.Inc()
	log.Info().Str("key", key).Str("uid", uid).Msg("chat created")

	roster := map[string]models.User{uid: {Name: name, Avatar: avatar, UID: uid}}
	after := func() {
		s.emitter.Emit(ChatChannel(key), "updateUserList", roster)
		s.emitter.Emit(WaitingChannel(key), "updateUserListWR", roster)
		s.emitter.EmitTo(connID, "server_message", ServerNotice{Message: serverMessage("You joined the chat🔥"), Type: "join"})
	}
	resp := Response{Success: true, Message: "Chat Created", Key: key, UserID: uid, MaxUsers: &maxUsers, Users: roster}
	return resp, after
}

// JoinChat 入场。容量由存储在与计数自增相同的原子步骤里复核，
// fetch 阶段的读数不被信任；满员即拒绝，不存在部分入场。
func (s *Service) JoinChat(ctx context.Context, connID, key, name, avatar string) (Response, func()) {
	if !validate.Key(key) {
		return failure(ErrInvalidInput, "Invalid Key"), nil
	}
	if !validate.Name(name) {
		return failure(ErrInvalidInput, "Invalid name"), nil
	}
	if !validate.Avatar(avatar) {
		return failure(ErrInvalidInput, "Invalid Avatar"), nil
	}
	if err := s.store.Healthy(ctx); err != nil {
		log.Warn().Err(err).Msg("joinChat store unreachable")
		s.store.Kick()
		return failure(ErrStoreUnavailable, "Database disconnected"), nil
	}
	uid := uuid.NewString()
	me := models.User{Name: name, Avatar: avatar, UID: uid, JoinedAt: time.Now().UnixMilli()}

	_, max, err := s.store.JoinChat(ctx, key, me, connID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrFull):
			return failure(ErrCapacityExceeded, "Chat Full"), nil
		case errors.Is(err, store.ErrNotFound):
			return failure(ErrNotFound, "Key Does Not Exist"), nil
		default:
			log.Error().Err(err).Str("key", key).Msg("joinChat store")
			return failure(ErrInternal, "Chat Join Failed"), nil
		}
	}

	// 只有入场成功才切换频道；被拒绝的等候者留在等候室继续收名册。
	s.emitter.Subscribe(ChatChannel(key), connID)
	s.emitter.Unsubscribe(WaitingChannel(key), connID)

	users, err := s.store.AllUsers(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("joinChat users")
		users = map[string]models.User{uid: {Name: name, Avatar: avatar, UID: uid}}
	}
	log.Info().Str("key", key).Str("uid", uid).Msg("chat joined")
	after := func() {
		s.emitter.Emit(ChatChannel(key), "updateUserList", users)
		s.emitter.Emit(WaitingChannel(key), "updateUserListWR", users)
		s.emitter.EmitTo(connID, "server_message", ServerNotice{Message: serverMessage("You joined the chat🔥"), Type: "join"})
		s.emitter.EmitExcept(ChatChannel(key), connID, "server_message", ServerNotice{Message: serverMessage(name + " joined the chat🔥"), Type: "join"})
	}
	resp := Response{Success: true, Message: "Chat Joined", Key: key, UserID: uid, MaxUsers: &max, Users: users}
	return resp, after
}

// Exit 是显式 leaveChat 与异常断连共用的清理路径。
// 频道退订无条件先行，重复调用是安全的空操作。
func (s *Service) Exit(ctx context.Context, connID, key, name, uid string) {
	s.emitter.Unsubscribe(WaitingChannel(key), connID)
	s.emitter.Unsubscribe(ChatChannel(key), connID)

	if uid == "" {
		// 会话状态缺失时（如进程重启后）从存储回灌身份。
		n, u, ok, err := s.store.SocketIdentity(ctx, connID)
		if err != nil {
			log.Error().Err(err).Str("conn", connID).Msg("exit identity lookup")
			return
		}
		if !ok {
			return
		}
		name, uid = n, u
	}

	left, existed, err := s.store.ExitUser(ctx, key, uid, connID)
	if err != nil {
		log.Error().Err(err).Str("key", key).Str("uid", uid).Msg("exit store")
		return
	}
	if !existed {
		return
	}

	log.Info().Str("name", name).Str("key", key).Msg("user left")
	s.emitter.EmitExcept(ChatChannel(key), connID, "server_message", ServerNotice{Message: serverMessage(name + " left the chat😭"), Type: "leave"})

	if left > 0 {
		users, err := s.store.AllUsers(ctx, key)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("exit users")
			return
		}
		s.emitter.Emit(ChatChannel(key), "updateUserList", users)
		s.emitter.Emit(WaitingChannel(key), "updateUserListWR", users)
		return
	}

	// 最后一名成员离场：删除房间并向两个频道广播空名册，
	// 这是房间记录唯一的删除路径。
	if err := s.store.DeleteChatKey(ctx, key); err != nil {
		log.Error().Err(err).Str("key", key).Msg("exit delete key")
	}
	metrics.ActiveChats.Dec()
	empty := map[string]models.User{}
	s.emitter.Emit(ChatChannel(key), "updateUserList", empty)
	s.emitter.Emit(WaitingChannel(key), "updateUserListWR", empty)
}
