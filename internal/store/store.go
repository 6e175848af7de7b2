package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/itsfuad/Poketab-Backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// 房间与连接在 Redis 中的记录布局：
//
//	chat:<key>        hash  activeUsers / maxUsers / admin / createdAt
//	chat:<key>:users  hash  uid -> 成员 JSON
//	socket:<connID>   hash  name / uid（仅在已入场期间存在）
var (
	ErrNotFound = errors.New("store: key not found")
	ErrFull     = errors.New("store: chat full")
)

// Store 封装 Presence 数据的原子读写，计数与成员集的变更通过
// Lua 脚本在服务端单步完成，容量校验不信任先前的读取。
type Store struct {
	rdb          *redis.Client
	reconnecting atomic.Bool
}

// Connect 建立 Redis 连接，带简单重试等待容器就绪。
func Connect(addr, password string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	var err error
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err == nil {
			return &Store{rdb: rdb}, nil
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

// New 直接包装一个现成的 client，供测试注入 miniredis 之类的实现。
func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func chatKey(key string) string  { return "chat:" + key }
func usersKey(key string) string { return "chat:" + key + ":users" }
func socketKey(id string) string { return "socket:" + id }

// createScript 一次性写入房间记录、首位成员与连接身份。
var createScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'activeUsers', 1, 'maxUsers', ARGV[1], 'admin', ARGV[2], 'createdAt', ARGV[3])
redis.call('HSET', KEYS[2], ARGV[4], ARGV[5])
redis.call('HSET', KEYS[3], 'name', ARGV[6], 'uid', ARGV[4])
return 1
`)

// joinScript 在同一原子步骤内复核容量并自增计数，
// 杜绝两个连接用同一份过期读数双双入场。
var joinScript = redis.NewScript(`
local active = redis.call('HGET', KEYS[1], 'activeUsers')
if not active then
  return {-2, 0}
end
local max = tonumber(redis.call('HGET', KEYS[1], 'maxUsers'))
if tonumber(active) >= max then
  return {-1, max}
end
local now = redis.call('HINCRBY', KEYS[1], 'activeUsers', 1)
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[3], 'name', ARGV[3], 'uid', ARGV[1])
return {now, max}
`)

// exitScript 以 socket 记录是否存在作为重复清理的哨兵，
// 第二次调用直接空转返回。
var exitScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 0 then
  return -1
end
redis.call('DEL', KEYS[3])
redis.call('HDEL', KEYS[2], ARGV[1])
local left = redis.call('HINCRBY', KEYS[1], 'activeUsers', -1)
if left < 0 then
  redis.call('HSET', KEYS[1], 'activeUsers', 0)
  left = 0
end
return left
`)

// Healthy 探测存储可用性，失败立即上报而非阻塞重试。
func (s *Store) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

// Kick 在后台发起一次重连探测，多次调用只保留一个探测协程。
func (s *Store) Kick() {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.reconnecting.Store(false)
		for i := 0; i < 10; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := s.rdb.Ping(ctx).Err()
			cancel()
			if err == nil {
				log.Info().Msg("store reconnected")
				return
			}
			time.Sleep(time.Duration(1+i) * time.Second)
		}
		log.Warn().Msg("store still unreachable")
	}()
}

// Exists 检查房间记录是否存在。
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, chatKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// counterField 解析 HMGET 返回的计数字段；字段缺失视同房间不存在。
func counterField(v any) (int, error) {
	s, ok := v.(string)
	if !ok {
		return 0, ErrNotFound
	}
	return strconv.Atoi(s)
}

// KeyData 读取房间的在场人数与容量上限。
func (s *Store) KeyData(ctx context.Context, key string) (active, max int, err error) {
	vals, err := s.rdb.HMGet(ctx, chatKey(key), "activeUsers", "maxUsers").Result()
	if err != nil {
		return 0, 0, err
	}
	if active, err = counterField(vals[0]); err != nil {
		return 0, 0, err
	}
	if max, err = counterField(vals[1]); err != nil {
		return 0, 0, err
	}
	return active, max, nil
}

// AllUsers 返回房间当前全部成员的公开信息，不含 joinedAt。
func (s *Store) AllUsers(ctx context.Context, key string) (map[string]models.User, error) {
	raw, err := s.rdb.HGetAll(ctx, usersKey(key)).Result()
	if err != nil {
		return nil, err
	}
	users := make(map[string]models.User, len(raw))
	for uid, blob := range raw {
		var u models.User
		if err := json.Unmarshal([]byte(blob), &u); err != nil {
			continue
		}
		u.JoinedAt = 0
		users[uid] = u
	}
	return users, nil
}

// CreateChat 原子写入新房间，创建者即首位成员。
func (s *Store) CreateChat(ctx context.Context, chat models.ChatKey, user models.User, connID string) error {
	blob, err := json.Marshal(user)
	if err != nil {
		return err
	}
	keys := []string{chatKey(chat.KeyID), usersKey(chat.KeyID), socketKey(connID)}
	return createScript.Run(ctx, s.rdb, keys,
		chat.MaxUsers, chat.Admin, chat.CreatedAt, user.UID, blob, user.Name).Err()
}

// JoinChat 原子入场：容量复核与计数自增在同一脚本内完成。
func (s *Store) JoinChat(ctx context.Context, key string, user models.User, connID string) (active, max int, err error) {
	blob, err := json.Marshal(user)
	if err != nil {
		return 0, 0, err
	}
	keys := []string{chatKey(key), usersKey(key), socketKey(connID)}
	res, err := joinScript.Run(ctx, s.rdb, keys, user.UID, blob, user.Name).Result()
	if err != nil {
		return 0, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("store: unexpected join reply %v", res)
	}
	n, _ := vals[0].(int64)
	m, _ := vals[1].(int64)
	switch n {
	case -2:
		return 0, 0, ErrNotFound
	case -1:
		return 0, int(m), ErrFull
	}
	return int(n), int(m), nil
}

// ExitUser 原子离场；existed 为 false 表示连接身份早已被清理。
func (s *Store) ExitUser(ctx context.Context, key, uid, connID string) (left int, existed bool, err error) {
	keys := []string{chatKey(key), usersKey(key), socketKey(connID)}
	n, err := exitScript.Run(ctx, s.rdb, keys, uid).Int()
	if err != nil {
		return 0, false, err
	}
	if n < 0 {
		return 0, false, nil
	}
	return n, true, nil
}

// DeleteChatKey 删除房间与成员记录，仅由最后一名成员离场触发。
func (s *Store) DeleteChatKey(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, chatKey(key), usersKey(key)).Err()
}

// SocketIdentity 由连接 id 反查身份，用于断连后的恢复清理。
func (s *Store) SocketIdentity(ctx context.Context, connID string) (name, uid string, ok bool, err error) {
	vals, err := s.rdb.HMGet(ctx, socketKey(connID), "name", "uid").Result()
	if err != nil {
		return "", "", false, err
	}
	n, ok1 := vals[0].(string)
	u, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return "", "", false, nil
	}
	return n, u, true, nil
}
