package realtime

import (
	"Courier/internal/pkg/metrics"
	log "log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub 进程内连接注册表, 维护 用户 -> 连接 与 广播组 -> 连接 两个索引
// 每个测试可独立创建, 不依赖全局状态
type Hub struct {
	mu          sync.RWMutex
	subs        map[string]Subscriber
	users       map[string]map[string]Subscriber
	groups      map[GroupKey]map[string]Subscriber
	memberships map[string]map[GroupKey]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs:        make(map[string]Subscriber),
		users:       make(map[string]map[string]Subscriber),
		groups:      make(map[GroupKey]map[string]Subscriber),
		memberships: make(map[string]map[GroupKey]struct{}),
	}
}

// Register 登记连接并自动加入用户个人组
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subs[sub.ID()] = sub
	conns := h.users[sub.UserID()]
	if conns == nil {
		conns = make(map[string]Subscriber)
		h.users[sub.UserID()] = conns
	}
	conns[sub.ID()] = sub
	h.memberships[sub.ID()] = make(map[GroupKey]struct{})
	h.joinLocked(UserGroup(sub.UserID()), sub)
	metrics.LiveConnections.Inc()
}

// Unregister 移除连接及其所有组关系, 返回该用户剩余的连接数
func (h *Hub) Unregister(sub Subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.ID()]; !ok {
		return len(h.users[sub.UserID()])
	}
	delete(h.subs, sub.ID())
	for key := range h.memberships[sub.ID()] {
		h.leaveLocked(key, sub.ID())
	}
	delete(h.memberships, sub.ID())

	conns := h.users[sub.UserID()]
	delete(conns, sub.ID())
	if len(conns) == 0 {
		delete(h.users, sub.UserID())
	}
	metrics.LiveConnections.Dec()
	return len(conns)
}

// Join 将已登记的连接加入组, 未登记返回 false
func (h *Hub) Join(key GroupKey, sub Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID()]; !ok {
		return false
	}
	h.joinLocked(key, sub)
	return true
}

func (h *Hub) Leave(key GroupKey, sub Subscriber) {
	h.mu.Lock()
	h.leaveLocked(key, sub.ID())
	h.mu.Unlock()
}

// InGroup 连接是否在组内
func (h *Hub) InGroup(key GroupKey, sub Subscriber) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.groups[key][sub.ID()]
	return ok
}

// IsOnline 用户在本进程是否有活跃连接
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// GroupSize 组内连接数
func (h *Hub) GroupSize(key GroupKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[key])
}

// Deliver 将信封投递给组内订阅者, 返回成功入队的连接数
// 订阅者快照在锁内生成, 发送在锁外进行
func (h *Hub) Deliver(env *Envelope) int {
	if env == nil || env.Group.IsZero() {
		return 0
	}

	h.mu.RLock()
	group := h.groups[env.Group]
	targets := make([]Subscriber, 0, len(group))
	for id, sub := range group {
		if env.ExcludeUser != "" && sub.UserID() == env.ExcludeUser {
			continue
		}
		if env.ExceptGroup != nil {
			if _, dup := h.groups[*env.ExceptGroup][id]; dup {
				continue
			}
		}
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if err := sub.Send(env.Payload); err != nil {
			metrics.RecordBroadcast("dropped")
			log.Warn("Broadcast to subscriber failed", "group", env.Group.String(), "conn_id", sub.ID(), "user_id", sub.UserID(), "err", err)
			continue
		}
		metrics.RecordBroadcast("queued")
		delivered++
	}
	return delivered
}

// Close 断开所有连接并清空状态
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[string]Subscriber)
	h.users = make(map[string]map[string]Subscriber)
	h.groups = make(map[GroupKey]map[string]Subscriber)
	h.memberships = make(map[string]map[GroupKey]struct{})
	h.mu.Unlock()

	metrics.LiveConnections.Sub(float64(len(subs)))
	for _, sub := range subs {
		sub.Close(websocket.CloseGoingAway, "server shutdown")
	}
}

func (h *Hub) joinLocked(key GroupKey, sub Subscriber) {
	group := h.groups[key]
	if group == nil {
		group = make(map[string]Subscriber)
		h.groups[key] = group
	}
	group[sub.ID()] = sub
	if m := h.memberships[sub.ID()]; m != nil {
		m[key] = struct{}{}
	}
}

func (h *Hub) leaveLocked(key GroupKey, subID string) {
	group := h.groups[key]
	if group == nil {
		return
	}
	delete(group, subID)
	if len(group) == 0 {
		delete(h.groups, key)
	}
	if m, ok := h.memberships[subID]; ok {
		delete(m, key)
	}
}
