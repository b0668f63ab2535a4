package packet

import (
	"reflect"

	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// 订阅分为两类包：
//   - 普通结构体：按导出字段声明顺序编码，字段计划在订阅时由反射生成；
//   - 自描述类型：*T 实现 netdata.Serializable，编解码完全由类型自身负责。
//
// 每类又分为分配型（每个包调用 ctor 创建新实例）与复用型（所有包写入同一个实例）。
// 复用型回调拿到的实例在下一次分发时会被覆盖，回调返回后不得继续持有。

// noUserData 占位表示订阅者不接收用户数据。
type noUserData struct{}

// Subscribe 订阅普通结构体包 T，每个包由 ctor 创建新实例，ctor 为 nil 时使用 new(T)。
func Subscribe[T any](p *Processor, onReceive func(*T), ctor func() *T) error {
	if onReceive == nil {
		return missingCallback[T]()
	}
	return subscribePlain(p, func(pkt *T, _ noUserData) { onReceive(pkt) }, ctor, false, false)
}

// SubscribeWithUserData 与 Subscribe 相同，回调额外接收 ReadPacketWithUserData 传入的用户数据。
// 未传入用户数据时回调收到 U 的零值。
func SubscribeWithUserData[T, U any](p *Processor, onReceive func(*T, U), ctor func() *T) error {
	if onReceive == nil {
		return missingCallback[T]()
	}
	return subscribePlain(p, onReceive, ctor, false, true)
}

// SubscribeReusable 订阅普通结构体包 T，所有包解码到同一个实例。
func SubscribeReusable[T any](p *Processor, onReceive func(*T)) error {
	if onReceive == nil {
		return missingCallback[T]()
	}
	return subscribePlain(p, func(pkt *T, _ noUserData) { onReceive(pkt) }, nil, true, false)
}

// SubscribeReusableWithUserData 与 SubscribeReusable 相同，回调额外接收用户数据。
func SubscribeReusableWithUserData[T, U any](p *Processor, onReceive func(*T, U)) error {
	if onReceive == nil {
		return missingCallback[T]()
	}
	return subscribePlain(p, onReceive, nil, true, true)
}

// SubscribeNetSerializable 订阅自描述包 T，每个包由 ctor 创建新实例，ctor 为 nil 时使用 new(T)。
func SubscribeNetSerializable[T any, PT netdata.SerializablePtr[T]](p *Processor, onReceive func(PT), ctor func() PT) error {
	if onReceive == nil {
		return missingCallback[T]()
	}
	return subscribeSerializable[T](p, func(pkt PT, _ noUserData) { onReceive(pkt) }, ctor, false, false)
}

// SubscribeNetSerializableWithUserData 与 SubscribeNetSerializable 相同，回调额外接收用户数据。
func SubscribeNetSerializableWithUserData[T any, PT netdata.SerializablePtr[T], U any](p *Processor, onReceive func(PT, U), ctor func() PT) error {
	if onReceive == nil {
		return missingCallback[T]()
	}
	return subscribeSerializable[T](p, onReceive, ctor, false, true)
}

// SubscribeNetSerializableReusable 订阅自描述包 T，所有包解码到同一个默认构造的实例。
func SubscribeNetSerializableReusable[T any, PT netdata.SerializablePtr[T]](p *Processor, onReceive func(PT)) error {
	if onReceive == nil {
		return missingCallback[T]()
	}
	return subscribeSerializable[T](p, func(pkt PT, _ noUserData) { onReceive(pkt) }, nil, true, false)
}

// SubscribeNetSerializableReusableWithUserData 与 SubscribeNetSerializableReusable 相同，回调额外接收用户数据。
func SubscribeNetSerializableReusableWithUserData[T any, PT netdata.SerializablePtr[T], U any](p *Processor, onReceive func(PT, U)) error {
	if onReceive == nil {
		return missingCallback[T]()
	}
	return subscribeSerializable[T](p, onReceive, nil, true, true)
}

func subscribePlain[T, U any](p *Processor, onReceive func(*T, U), ctor func() *T, reusable, withUserData bool) error {
	t := reflect.TypeFor[T]()
	plan, err := p.planFor(t)
	if err != nil {
		return err
	}
	sub := newSubscription[T, U](reusable, withUserData)
	sub.encode = func(w *netdata.DataWriter, pkt any) {
		plan.encode(w, reflect.ValueOf(pkt).Elem())
	}

	if reusable {
		instance := new(T)
		value := reflect.ValueOf(instance).Elem()
		sub.dispatch = func(r *netdata.DataReader, userData any) error {
			if err := plan.decode(r, value); err != nil {
				return err
			}
			onReceive(instance, userDataOf[U](userData))
			return nil
		}
		return p.subscribe(sub)
	}

	if ctor == nil {
		ctor = func() *T { return new(T) }
	}
	sub.dispatch = func(r *netdata.DataReader, userData any) error {
		pkt := ctor()
		if pkt == nil {
			return merr.WrapErrParameterMissing(sub.name, "constructor returned nil")
		}
		if err := plan.decode(r, reflect.ValueOf(pkt).Elem()); err != nil {
			return err
		}
		onReceive(pkt, userDataOf[U](userData))
		return nil
	}
	return p.subscribe(sub)
}

func subscribeSerializable[T any, PT netdata.SerializablePtr[T], U any](p *Processor, onReceive func(PT, U), ctor func() PT, reusable, withUserData bool) error {
	sub := newSubscription[T, U](reusable, withUserData)
	sub.encode = func(w *netdata.DataWriter, pkt any) {
		pkt.(PT).Serialize(w)
	}

	if reusable {
		instance := PT(new(T))
		sub.dispatch = func(r *netdata.DataReader, userData any) error {
			if err := instance.Deserialize(r); err != nil {
				return err
			}
			onReceive(instance, userDataOf[U](userData))
			return nil
		}
		return p.subscribe(sub)
	}

	if ctor == nil {
		ctor = func() PT { return PT(new(T)) }
	}
	sub.dispatch = func(r *netdata.DataReader, userData any) error {
		pkt := ctor()
		if pkt == nil {
			return merr.WrapErrParameterMissing(sub.name, "constructor returned nil")
		}
		if err := pkt.Deserialize(r); err != nil {
			return err
		}
		onReceive(pkt, userDataOf[U](userData))
		return nil
	}
	return p.subscribe(sub)
}

func newSubscription[T, U any](reusable, withUserData bool) *subscription {
	t := reflect.TypeFor[T]()
	sub := &subscription{
		id:       GetHash(t),
		name:     TypeName(t),
		typ:      t,
		reusable: reusable,
	}
	if withUserData {
		sub.userType = reflect.TypeFor[U]()
		sub.acceptUserData = func(userData any) bool {
			_, ok := userData.(U)
			return ok
		}
	}
	return sub
}

// userDataOf 取出用户数据，类型已在分发前校验，nil 对应零值。
func userDataOf[U any](userData any) U {
	u, _ := userData.(U)
	return u
}

func missingCallback[T any]() error {
	return merr.WrapErrParameterMissing(TypeName(reflect.TypeFor[T]()), "onReceive")
}
