package packet

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/internal/network/serializer"
	"github.com/lk2023060901/danmu-netcodec/pkg/log"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// nestedCodec 是一个字段级的复合类型编解码器，它本身不是可分发的顶层包。
type nestedCodec struct {
	name string
	valueCodec
}

// 嵌套类型必须在引用它的包类型 Subscribe 之前注册，编解码计划在 Subscribe 时生成。

// RegisterNestedType 将自描述类型 T（*T 实现 netdata.Serializable）注册为嵌套字段类型。
// 字段类型为 T 或 *T 时都会使用该编解码器。T 已注册时返回 false 且不做任何修改。
func RegisterNestedType[T any, PT netdata.SerializablePtr[T]](p *Processor) bool {
	t := reflect.TypeFor[T]()
	value := valueCodec{
		write: func(w *netdata.DataWriter, v reflect.Value) {
			PT(v.Addr().Interface().(*T)).Serialize(w)
		},
		read: func(r *netdata.DataReader, v reflect.Value) error {
			return PT(v.Addr().Interface().(*T)).Deserialize(r)
		},
	}
	pointer := serializablePointerCodec(reflect.PointerTo(t))
	return p.registerNested(t, value, pointer)
}

// RegisterNestedTypeFuncs 以一对读写函数注册嵌套字段类型 T。
// T 已注册时返回 false 且不做任何修改。
func RegisterNestedTypeFuncs[T any](p *Processor, write func(w *netdata.DataWriter, v T), read func(r *netdata.DataReader) (T, error)) bool {
	if write == nil || read == nil {
		return false
	}
	codec := valueCodec{
		write: func(w *netdata.DataWriter, v reflect.Value) {
			write(w, v.Interface().(T))
		},
		read: func(r *netdata.DataReader, v reflect.Value) error {
			value, err := read(r)
			if err != nil {
				return err
			}
			v.Set(reflect.ValueOf(&value).Elem())
			return nil
		},
	}
	return p.registerNested(reflect.TypeFor[T](), codec, valueCodec{})
}

// RegisterSerializerNestedType 将通用 Serializer（JSON/Protobuf/CBOR）适配为嵌套字段类型 T 的编解码器。
//
// 序列化结果以 uint16 长度前缀的字节串写入，因此单个值编码后不能超过 netdata.MaxLength 字节。
// T 为指针类型（例如 *pb.Message）时，newFn 用于为每次解码创建目标对象；
// T 为值类型时 newFn 可以为 nil，解码目标为零值。
func RegisterSerializerNestedType[T any](p *Processor, ser serializer.Serializer, newFn func() T) bool {
	if ser == nil {
		return false
	}
	t := reflect.TypeFor[T]()
	isPointer := t.Kind() == reflect.Pointer
	if isPointer && newFn == nil {
		newFn = func() T { return reflect.New(t.Elem()).Interface().(T) }
	}
	name := TypeName(t)
	codec := valueCodec{
		write: func(w *netdata.DataWriter, v reflect.Value) {
			if isPointer && v.IsNil() {
				w.SetError(merr.WrapErrParameterMissing(name, "nil nested field"))
				return
			}
			data, err := ser.Marshal(v.Interface())
			if err != nil {
				w.SetError(merr.WrapErrCodecInvalidData(name, ser.Name()+" marshal: "+err.Error()))
				return
			}
			w.PutBytesWithLength(data)
		},
		read: func(r *netdata.DataReader, v reflect.Value) error {
			data, err := r.GetBytesWithLength()
			if err != nil {
				return err
			}
			var value T
			if newFn != nil {
				value = newFn()
			}
			target := any(&value)
			if isPointer {
				target = value
			}
			if err := ser.Unmarshal(data, target); err != nil {
				return merr.WrapErrCodecInvalidData(name, ser.Name()+" unmarshal: "+err.Error())
			}
			v.Set(reflect.ValueOf(&value).Elem())
			return nil
		},
	}
	return p.registerNested(t, codec, valueCodec{})
}

// registerNested 在写锁下登记 t（以及可选的 *t）的编解码器。
func (p *Processor) registerNested(t reflect.Type, value, pointer valueCodec) bool {
	name := TypeName(t)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.nested[t]; ok {
		return false
	}
	p.nested[t] = &nestedCodec{name: name, valueCodec: value}
	if pointer.write != nil {
		pt := reflect.PointerTo(t)
		if _, ok := p.nested[pt]; !ok {
			p.nested[pt] = &nestedCodec{name: name, valueCodec: pointer}
		}
	}
	p.Logger().Debug("nested type registered", log.FieldTypeName(name), zap.Stringer("goType", t))
	return true
}
