package packet

import (
	"reflect"

	"github.com/lk2023060901/danmu-netcodec/internal/network"
	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/pkg/log"
	"github.com/lk2023060901/danmu-netcodec/pkg/metrics"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// Peer 是单个远端的发送端。Send 返回后实现不得继续持有 data。
type Peer interface {
	Send(data []byte, method network.DeliveryMethod) error
}

// Manager 向所有已连接的远端广播数据。SendToAll 返回后实现不得继续持有 data。
type Manager interface {
	SendToAll(data []byte, method network.DeliveryMethod) error
}

// Write 将包 pkt（类型标识 + 字段）追加到 w。
//
// T 必须已经订阅。w 已处于错误状态时直接返回该错误；编码过程中出错时，
// w 的长度回退到写入该包之前，错误同时保留在 w 上。
func Write[T any](p *Processor, w *netdata.DataWriter, pkt *T) error {
	t := reflect.TypeFor[T]()
	if pkt == nil {
		return merr.WrapErrParameterMissing(TypeName(t), "nil packet")
	}
	return p.write(t, w, pkt)
}

// WriteNetSerializable 与 Write 相同，用于 *T 实现 netdata.Serializable 的包。
func WriteNetSerializable[T any, PT netdata.SerializablePtr[T]](p *Processor, w *netdata.DataWriter, pkt PT) error {
	t := reflect.TypeFor[T]()
	if pkt == nil {
		return merr.WrapErrParameterMissing(TypeName(t), "nil packet")
	}
	return p.write(t, w, (*T)(pkt))
}

func (p *Processor) write(t reflect.Type, w *netdata.DataWriter, pkt any) error {
	sub := p.lookupType(t)
	if sub == nil {
		return merr.WrapErrCodecUnregisteredType(GetHash(t), TypeName(t))
	}
	if err := w.Err(); err != nil {
		return err
	}

	mark := w.Length()
	w.PutUint64(sub.id)
	sub.encode(w, pkt)
	if err := w.Err(); err != nil {
		w.SetPosition(mark)
		p.Logger().Debug("encode packet failed",
			log.FieldStage(network.StageEncode), log.FieldTypeName(sub.name), log.FieldTypeID(sub.id))
		return err
	}

	sub.encoded.Inc()
	metrics.PacketEncodedBytes.Observe(float64(w.Length() - mark))
	return nil
}

// Marshal 将单个包编码为一段新分配的字节。
func Marshal[T any](p *Processor, pkt *T) ([]byte, error) {
	w := p.writers.Get()
	defer p.writers.Put(w)
	if err := Write(p, w, pkt); err != nil {
		return nil, err
	}
	return w.CopyData(), nil
}

// MarshalNetSerializable 与 Marshal 相同，用于自描述包。
func MarshalNetSerializable[T any, PT netdata.SerializablePtr[T]](p *Processor, pkt PT) ([]byte, error) {
	w := p.writers.Get()
	defer p.writers.Put(w)
	if err := WriteNetSerializable[T](p, w, pkt); err != nil {
		return nil, err
	}
	return w.CopyData(), nil
}

// Send 编码 pkt 并通过 peer 发送。
func Send[T any](p *Processor, peer Peer, pkt *T, method network.DeliveryMethod) error {
	if peer == nil {
		return merr.WrapErrParameterMissing("peer")
	}
	w := p.writers.Get()
	defer p.writers.Put(w)
	if err := Write(p, w, pkt); err != nil {
		return err
	}
	return peer.Send(w.Bytes(), method)
}

// SendNetSerializable 与 Send 相同，用于自描述包。
func SendNetSerializable[T any, PT netdata.SerializablePtr[T]](p *Processor, peer Peer, pkt PT, method network.DeliveryMethod) error {
	if peer == nil {
		return merr.WrapErrParameterMissing("peer")
	}
	w := p.writers.Get()
	defer p.writers.Put(w)
	if err := WriteNetSerializable[T](p, w, pkt); err != nil {
		return err
	}
	return peer.Send(w.Bytes(), method)
}

// SendToAll 编码 pkt 一次并通过 manager 广播。
func SendToAll[T any](p *Processor, manager Manager, pkt *T, method network.DeliveryMethod) error {
	if manager == nil {
		return merr.WrapErrParameterMissing("manager")
	}
	w := p.writers.Get()
	defer p.writers.Put(w)
	if err := Write(p, w, pkt); err != nil {
		return err
	}
	return manager.SendToAll(w.Bytes(), method)
}

// SendNetSerializableToAll 与 SendToAll 相同，用于自描述包。
func SendNetSerializableToAll[T any, PT netdata.SerializablePtr[T]](p *Processor, manager Manager, pkt PT, method network.DeliveryMethod) error {
	if manager == nil {
		return merr.WrapErrParameterMissing("manager")
	}
	w := p.writers.Get()
	defer p.writers.Put(w)
	if err := WriteNetSerializable[T](p, w, pkt); err != nil {
		return err
	}
	return manager.SendToAll(w.Bytes(), method)
}
