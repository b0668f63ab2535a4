package transport

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-netcodec/internal/network"
	"github.com/lk2023060901/danmu-netcodec/pkg/log"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/conc"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// PeerManager 维护当前所有远端的索引，并提供广播能力。
//
// 特性：
//   - 使用读写锁保证并发安全，Range 在遍历前复制快照，不在持锁情况下执行回调；
//   - Add 在遇到重复 ID 时返回错误，避免覆盖旧的 Peer；
//   - SendToAll 通过协程池并发发送，等待全部完成后返回合并的错误。
type PeerManager struct {
	log.Binder

	mu    sync.RWMutex
	peers map[int32]*Peer

	pool *conc.Pool[struct{}]
}

// broadcastWorkerExpiry 为广播协程空闲多久后被回收。
const broadcastWorkerExpiry = 30 * time.Second

// NewPeerManager 创建一个空的 PeerManager，workers <= 0 时使用 GOMAXPROCS 个广播协程。
func NewPeerManager(workers int) *PeerManager {
	var pool *conc.Pool[struct{}]
	if workers > 0 {
		pool = conc.NewPool[struct{}](workers, conc.WithExpiryDuration(broadcastWorkerExpiry))
	} else {
		pool = conc.NewDefaultPool[struct{}](conc.WithExpiryDuration(broadcastWorkerExpiry))
	}
	m := &PeerManager{
		peers: make(map[int32]*Peer),
		pool:  pool,
	}
	m.BindComponent("peer-manager")
	return m
}

// Add 注册一个 Peer。
func (m *PeerManager) Add(peer *Peer) error {
	if peer == nil {
		return merr.WrapErrParameterMissing("peer")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.peers[peer.ID()]; exists {
		return merr.WrapErrPeerExists(peer.ID())
	}
	m.peers[peer.ID()] = peer
	m.Logger().Debug("peer added", log.FieldPeer(peer.ID()), zap.Stringer(log.FieldNameRemote, peer.EndPoint()))
	return nil
}

// Get 根据 id 查找 Peer。
func (m *PeerManager) Get(id int32) (*Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peer, ok := m.peers[id]
	return peer, ok
}

// Remove 移除指定 id 的 Peer。
func (m *PeerManager) Remove(id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.peers[id]; !exists {
		return merr.WrapErrPeerNotFound(id)
	}
	delete(m.peers, id)
	m.Logger().Debug("peer removed", log.FieldPeer(id))
	return nil
}

// Range 遍历当前所有 Peer，fn 返回 false 时中断。
func (m *PeerManager) Range(fn func(peer *Peer) bool) {
	if fn == nil {
		return
	}
	for _, peer := range m.ConnectedPeers() {
		if !fn(peer) {
			return
		}
	}
}

// Count 返回当前 Peer 数量。
func (m *PeerManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// ConnectedPeers 返回按 ID 排序的 Peer 快照。
func (m *PeerManager) ConnectedPeers() []*Peer {
	m.mu.RLock()
	peers := lo.Values(m.peers)
	m.mu.RUnlock()
	slices.SortFunc(peers, func(a, b *Peer) int { return int(a.ID()) - int(b.ID()) })
	return peers
}

// SendToAll 将 data 发给所有 Peer。
func (m *PeerManager) SendToAll(data []byte, method network.DeliveryMethod) error {
	return m.send(m.ConnectedPeers(), data, method)
}

// SendToAllExcept 将 data 发给除 excludeID 之外的所有 Peer。
func (m *PeerManager) SendToAllExcept(data []byte, method network.DeliveryMethod, excludeID int32) error {
	peers := lo.Filter(m.ConnectedPeers(), func(peer *Peer, _ int) bool { return peer.ID() != excludeID })
	return m.send(peers, data, method)
}

// send 等待所有发送完成后才返回，调用方随后可以复用 data。
func (m *PeerManager) send(peers []*Peer, data []byte, method network.DeliveryMethod) error {
	futures := make([]*conc.Future[struct{}], 0, len(peers))
	for _, peer := range peers {
		futures = append(futures, m.pool.Submit(func() (struct{}, error) {
			return struct{}{}, peer.Send(data, method)
		}))
	}
	if err := conc.AwaitAll(futures...); err != nil {
		m.Logger().RatedWarn(1, "broadcast partially failed",
			log.FieldStage(network.StageSend), zap.Int("peers", len(peers)), zap.Error(err))
		return err
	}
	return nil
}

// Close 释放广播协程池。
func (m *PeerManager) Close() {
	m.pool.Release()
}
