package packet

import (
	"reflect"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-netcodec/internal/network"
	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/internal/pool/writerpool"
	"github.com/lk2023060901/danmu-netcodec/pkg/log"
	"github.com/lk2023060901/danmu-netcodec/pkg/metrics"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// typeIDSize 为每个包头部类型标识的字节数。
const typeIDSize = 8

const (
	malformedRateGroup    = "packet.malformed"
	malformedCreditPerSec = 1.0
	malformedMaxBalance   = 30.0
)

// Options 为 Processor 的行为配置。
type Options struct {
	// Permissive 为 true 时，无法解析的包只记录日志与指标，丢弃缓冲区剩余数据后返回 nil。
	Permissive bool `mapstructure:"permissive"`
	// WriterInitialSize 为 Marshal/Send 使用的写入器在首次校准前的初始容量。
	WriterInitialSize int `mapstructure:"writerInitialSize"`
}

// Processor 维护类型标识到订阅者的注册表，负责包的编码与分发。
//
// 注册表由读写锁保护，回调在锁外执行。
// 可复用订阅在每次分发时覆盖同一个实例，因此同一个 Processor 的读取路径只能由单个 goroutine 驱动。
type Processor struct {
	log.Binder

	opts Options

	mu        sync.RWMutex
	callbacks map[uint64]*subscription
	byType    map[reflect.Type]*subscription
	nested    map[reflect.Type]*nestedCodec

	writers *writerpool.Pool
}

type subscription struct {
	id       uint64
	name     string
	typ      reflect.Type
	userType reflect.Type
	reusable bool

	acceptUserData func(userData any) bool

	encode   func(w *netdata.DataWriter, pkt any)
	dispatch func(r *netdata.DataReader, userData any) error

	dispatched prometheus.Counter
	encoded    prometheus.Counter
}

// SubscriptionInfo 是注册表中一项订阅的只读快照。
type SubscriptionInfo struct {
	TypeID       uint64
	TypeName     string
	Reusable     bool
	WithUserData bool
}

// New 创建一个空注册表的 Processor。
func New(opts Options) *Processor {
	p := &Processor{
		opts:      opts,
		callbacks: make(map[uint64]*subscription),
		byType:    make(map[reflect.Type]*subscription),
		nested:    make(map[reflect.Type]*nestedCodec),
		writers:   writerpool.New(opts.WriterInitialSize),
	}
	p.SetLogger(log.With(log.FieldComponent("packet-processor")).
		WithRateGroup(malformedRateGroup, malformedCreditPerSec, malformedMaxBalance))
	return p
}

// Options 返回创建时的配置。
func (p *Processor) Options() Options { return p.opts }

func (p *Processor) subscribe(sub *subscription) error {
	sub.dispatched = metrics.PacketDispatchedTotal.WithLabelValues(sub.name)
	sub.encoded = metrics.PacketEncodedTotal.WithLabelValues(sub.name)

	p.mu.Lock()
	defer p.mu.Unlock()
	if exist, ok := p.callbacks[sub.id]; ok {
		p.Logger().Warn("duplicate packet type",
			log.FieldTypeID(sub.id), log.FieldTypeName(sub.name), zap.String("registered", exist.name))
		return merr.WrapErrCodecDuplicateType(sub.name, sub.id)
	}
	p.callbacks[sub.id] = sub
	p.byType[sub.typ] = sub
	p.Logger().Debug("packet type subscribed",
		log.FieldTypeID(sub.id), log.FieldTypeName(sub.name), zap.Bool("reusable", sub.reusable))
	return nil
}

// planFor 在读锁下为 t 构建字段计划，嵌套类型注册表在此期间不可变。
func (p *Processor) planFor(t reflect.Type) (*recordPlan, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buildPlan(t)
}

func (p *Processor) lookup(id uint64) *subscription {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.callbacks[id]
}

func (p *Processor) lookupType(t reflect.Type) *subscription {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byType[t]
}

// RemoveSubscription 删除类型 T 的订阅，T 未注册时返回 false。
func RemoveSubscription[T any](p *Processor) bool {
	id := HashOf[T]()
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.callbacks[id]
	if !ok {
		return false
	}
	delete(p.callbacks, id)
	delete(p.byType, sub.typ)
	p.Logger().Debug("packet type unsubscribed", log.FieldTypeID(id), log.FieldTypeName(sub.name))
	return true
}

// Subscriptions 返回当前注册表的快照，按类型名排序。
func (p *Processor) Subscriptions() []SubscriptionInfo {
	p.mu.RLock()
	infos := lo.MapToSlice(p.callbacks, func(id uint64, sub *subscription) SubscriptionInfo {
		return SubscriptionInfo{
			TypeID:       id,
			TypeName:     sub.name,
			Reusable:     sub.reusable,
			WithUserData: sub.userType != nil,
		}
	})
	p.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].TypeName < infos[j].TypeName })
	return infos
}

// ReadPacket 从 r 的当前位置读取并分发一个包。
func (p *Processor) ReadPacket(r *netdata.DataReader) error {
	return p.readPacket(r, nil)
}

// ReadPacketWithUserData 与 ReadPacket 相同，userData 会传给带用户数据的订阅者。
func (p *Processor) ReadPacketWithUserData(r *netdata.DataReader, userData any) error {
	return p.readPacket(r, userData)
}

// ReadAllPackets 依次分发 r 中的所有包，直到数据读完或遇到第一个错误。
// 出错前已经执行的回调不会回滚。
func (p *Processor) ReadAllPackets(r *netdata.DataReader) error {
	return p.ReadAllPacketsWithUserData(r, nil)
}

// ReadAllPacketsWithUserData 与 ReadAllPackets 相同，userData 会传给带用户数据的订阅者。
func (p *Processor) ReadAllPacketsWithUserData(r *netdata.DataReader, userData any) error {
	for !r.EndOfData() {
		if err := p.readPacket(r, userData); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) readPacket(r *netdata.DataReader, userData any) error {
	start := r.Position()
	id, err := r.PeekUint64()
	if err != nil {
		return p.malformed(r, &ParseError{Position: start, Size: r.UserDataSize(), Err: err},
			metrics.ReasonTruncatedHeader)
	}

	sub := p.lookup(id)
	if sub == nil {
		return p.malformed(r, &ParseError{
			TypeID:   id,
			Position: start,
			Size:     r.UserDataSize(),
			Err:      merr.WrapErrCodecUnregisteredType(id),
		}, metrics.ReasonUnregistered)
	}

	if sub.acceptUserData != nil && userData != nil && !sub.acceptUserData(userData) {
		return merr.WrapErrParameterInvalid(sub.userType.String(), reflect.TypeOf(userData).String(),
			"user data for "+sub.name)
	}

	_ = r.SkipBytes(typeIDSize)
	if err := sub.dispatch(r, userData); err != nil {
		return p.malformed(r, &ParseError{
			TypeID:   id,
			TypeName: sub.name,
			Position: start,
			Size:     r.UserDataSize(),
			Err:      err,
		}, metrics.ReasonDecode)
	}
	sub.dispatched.Inc()
	return nil
}

// malformed 记录一个无法解析的包。宽松模式下丢弃剩余数据并返回 nil，
// 否则将游标恢复到该包的起始位置并返回 err。
func (p *Processor) malformed(r *netdata.DataReader, err *ParseError, reason string) error {
	metrics.PacketMalformedTotal.WithLabelValues(reason).Inc()
	p.Logger().RatedWarn(1, "malformed packet",
		log.FieldStage(network.StageDecode),
		log.FieldTypeID(err.TypeID),
		log.FieldTypeName(err.TypeName),
		zap.String("reason", reason),
		zap.Int("position", err.Position),
		zap.Int("size", err.Size),
		zap.Bool("permissive", p.opts.Permissive),
		zap.Error(err.Err))

	if p.opts.Permissive {
		r.GetRemainingBytesSegment()
		return nil
	}
	_ = r.SetPosition(err.Position)
	return err
}
