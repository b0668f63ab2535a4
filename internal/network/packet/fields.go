package packet

import (
	"net/netip"
	"reflect"

	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// 结构体标签：`netdata:"-"` 跳过该字段。
const fieldTag = "netdata"

var (
	serializableType = reflect.TypeFor[netdata.Serializable]()
	addrPortType     = reflect.TypeFor[netip.AddrPort]()
)

type (
	writeValueFunc func(w *netdata.DataWriter, v reflect.Value)
	readValueFunc  func(r *netdata.DataReader, v reflect.Value) error
)

// valueCodec 是某个具体类型在线上的读写方式，读写目标都是可寻址的 reflect.Value。
type valueCodec struct {
	write writeValueFunc
	read  readValueFunc
	// width 为定长编码的字节数，变长编码为 0，用于数组前缀的预校验。
	width int
}

type fieldCodec struct {
	index int
	name  string
	valueCodec
}

// recordPlan 是一个普通结构体的编解码计划：按声明顺序排列的导出字段。
// 计划在注册时构建一次，收发路径上只遍历计划，不再解析类型。
type recordPlan struct {
	typ    reflect.Type
	fields []fieldCodec
}

func (pl *recordPlan) encode(w *netdata.DataWriter, v reflect.Value) {
	for i := range pl.fields {
		f := &pl.fields[i]
		f.write(w, v.Field(f.index))
	}
}

func (pl *recordPlan) decode(r *netdata.DataReader, v reflect.Value) error {
	for i := range pl.fields {
		f := &pl.fields[i]
		if err := f.read(r, v.Field(f.index)); err != nil {
			return err
		}
	}
	return nil
}

// buildPlan 为结构体类型 t 构建编解码计划，调用方需持有 p.mu 读锁。
func (p *Processor) buildPlan(t reflect.Type) (*recordPlan, error) {
	name := TypeName(t)
	if t.Kind() != reflect.Struct {
		return nil, merr.WrapErrCodecInvalidType(name, "plain packet must be a struct, got "+t.Kind().String())
	}
	plan := &recordPlan{typ: t}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get(fieldTag) == "-" {
			continue
		}
		codec, reason := p.codecFor(sf.Type)
		if reason != "" {
			return nil, merr.WrapErrCodecInvalidType(name, "field "+sf.Name+": "+reason)
		}
		plan.fields = append(plan.fields, fieldCodec{index: i, name: sf.Name, valueCodec: codec})
	}
	if len(plan.fields) == 0 {
		return nil, merr.WrapErrCodecInvalidType(name, "no encodable fields")
	}
	return plan, nil
}

// codecFor 返回类型 t 的编解码方式；不支持时 reason 非空。
func (p *Processor) codecFor(t reflect.Type) (valueCodec, string) {
	if nested, ok := p.nested[t]; ok {
		return nested.valueCodec, ""
	}
	switch {
	case t == addrPortType:
		return endpointCodec, ""
	case t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(serializableType):
		return serializableValueCodec, ""
	case t.Kind() == reflect.Pointer && t.Implements(serializableType):
		return serializablePointerCodec(t), ""
	}

	if codec, ok := primitiveCodecs[t.Kind()]; ok {
		return codec, ""
	}

	switch t.Kind() {
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return bytesCodec, ""
		}
		elem, reason := p.codecFor(t.Elem())
		if reason != "" {
			return valueCodec{}, "slice element: " + reason
		}
		return sliceCodec(t, elem), ""
	case reflect.Struct:
		return valueCodec{}, "struct type " + t.String() + " is neither Serializable nor a registered nested type"
	case reflect.Pointer:
		return valueCodec{}, "pointer type " + t.String() + " is neither Serializable nor a registered nested type"
	default:
		return valueCodec{}, "unsupported kind " + t.Kind().String()
	}
}

// primitiveCodecs 按 Kind 匹配，同样适用于 `type Level int32` 这类具名类型。
// int/uint 在线上固定为 64 位。
var primitiveCodecs = map[reflect.Kind]valueCodec{
	reflect.Bool: {
		write: func(w *netdata.DataWriter, v reflect.Value) { w.PutBool(v.Bool()) },
		read: func(r *netdata.DataReader, v reflect.Value) error {
			b, err := r.GetBool()
			v.SetBool(b)
			return err
		},
		width: 1,
	},
	reflect.Int8:    intCodec(1),
	reflect.Int16:   intCodec(2),
	reflect.Int32:   intCodec(4),
	reflect.Int64:   intCodec(8),
	reflect.Int:     intCodec(8),
	reflect.Uint8:   uintCodec(1),
	reflect.Uint16:  uintCodec(2),
	reflect.Uint32:  uintCodec(4),
	reflect.Uint64:  uintCodec(8),
	reflect.Uint:    uintCodec(8),
	reflect.Float32: {
		write: func(w *netdata.DataWriter, v reflect.Value) { w.PutFloat32(float32(v.Float())) },
		read: func(r *netdata.DataReader, v reflect.Value) error {
			f, err := r.GetFloat32()
			v.SetFloat(float64(f))
			return err
		},
		width: 4,
	},
	reflect.Float64: {
		write: func(w *netdata.DataWriter, v reflect.Value) { w.PutFloat64(v.Float()) },
		read: func(r *netdata.DataReader, v reflect.Value) error {
			f, err := r.GetFloat64()
			v.SetFloat(f)
			return err
		},
		width: 8,
	},
	reflect.String: {
		write: func(w *netdata.DataWriter, v reflect.Value) { w.PutString(v.String()) },
		read: func(r *netdata.DataReader, v reflect.Value) error {
			s, err := r.GetString()
			v.SetString(s)
			return err
		},
	},
}

func intCodec(width int) valueCodec {
	c := valueCodec{width: width}
	switch width {
	case 1:
		c.write = func(w *netdata.DataWriter, v reflect.Value) { w.PutSByte(int8(v.Int())) }
		c.read = func(r *netdata.DataReader, v reflect.Value) error {
			n, err := r.GetSByte()
			v.SetInt(int64(n))
			return err
		}
	case 2:
		c.write = func(w *netdata.DataWriter, v reflect.Value) { w.PutInt16(int16(v.Int())) }
		c.read = func(r *netdata.DataReader, v reflect.Value) error {
			n, err := r.GetInt16()
			v.SetInt(int64(n))
			return err
		}
	case 4:
		c.write = func(w *netdata.DataWriter, v reflect.Value) { w.PutInt32(int32(v.Int())) }
		c.read = func(r *netdata.DataReader, v reflect.Value) error {
			n, err := r.GetInt32()
			v.SetInt(int64(n))
			return err
		}
	default:
		c.write = func(w *netdata.DataWriter, v reflect.Value) { w.PutInt64(v.Int()) }
		c.read = func(r *netdata.DataReader, v reflect.Value) error {
			n, err := r.GetInt64()
			v.SetInt(n)
			return err
		}
	}
	return c
}

func uintCodec(width int) valueCodec {
	c := valueCodec{width: width}
	switch width {
	case 1:
		c.write = func(w *netdata.DataWriter, v reflect.Value) { w.PutByte(uint8(v.Uint())) }
		c.read = func(r *netdata.DataReader, v reflect.Value) error {
			n, err := r.GetByte()
			v.SetUint(uint64(n))
			return err
		}
	case 2:
		c.write = func(w *netdata.DataWriter, v reflect.Value) { w.PutUint16(uint16(v.Uint())) }
		c.read = func(r *netdata.DataReader, v reflect.Value) error {
			n, err := r.GetUint16()
			v.SetUint(uint64(n))
			return err
		}
	case 4:
		c.write = func(w *netdata.DataWriter, v reflect.Value) { w.PutUint32(uint32(v.Uint())) }
		c.read = func(r *netdata.DataReader, v reflect.Value) error {
			n, err := r.GetUint32()
			v.SetUint(uint64(n))
			return err
		}
	default:
		c.write = func(w *netdata.DataWriter, v reflect.Value) { w.PutUint64(v.Uint()) }
		c.read = func(r *netdata.DataReader, v reflect.Value) error {
			n, err := r.GetUint64()
			v.SetUint(n)
			return err
		}
	}
	return c
}

var bytesCodec = valueCodec{
	write: func(w *netdata.DataWriter, v reflect.Value) { w.PutBytesWithLength(v.Bytes()) },
	read: func(r *netdata.DataReader, v reflect.Value) error {
		b, err := r.GetBytesWithLength()
		if err != nil {
			return err
		}
		v.SetBytes(b)
		return nil
	},
}

var endpointCodec = valueCodec{
	write: func(w *netdata.DataWriter, v reflect.Value) {
		w.PutEndPoint(v.Interface().(netip.AddrPort))
	},
	read: func(r *netdata.DataReader, v reflect.Value) error {
		ep, err := r.GetEndPoint()
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(ep))
		return nil
	},
}

// serializableValueCodec 处理 *T 实现 Serializable 的值类型字段，目标必须可寻址。
var serializableValueCodec = valueCodec{
	write: func(w *netdata.DataWriter, v reflect.Value) {
		v.Addr().Interface().(netdata.Serializable).Serialize(w)
	},
	read: func(r *netdata.DataReader, v reflect.Value) error {
		return v.Addr().Interface().(netdata.Serializable).Deserialize(r)
	},
}

// serializablePointerCodec 处理 *T 类型字段：写入 nil 视为错误，读取时按需分配。
func serializablePointerCodec(t reflect.Type) valueCodec {
	name := t.String()
	return valueCodec{
		write: func(w *netdata.DataWriter, v reflect.Value) {
			if v.IsNil() {
				w.SetError(merr.WrapErrParameterMissing(name, "nil serializable field"))
				return
			}
			v.Interface().(netdata.Serializable).Serialize(w)
		},
		read: func(r *netdata.DataReader, v reflect.Value) error {
			if v.IsNil() {
				v.Set(reflect.New(t.Elem()))
			}
			return v.Interface().(netdata.Serializable).Deserialize(r)
		},
	}
}

// sliceCodec 编码为 uint16 元素个数 + 逐个元素，与 DataWriter 的数组格式一致。
func sliceCodec(t reflect.Type, elem valueCodec) valueCodec {
	kind := t.String()
	return valueCodec{
		write: func(w *netdata.DataWriter, v reflect.Value) {
			n := v.Len()
			if n > netdata.MaxLength {
				w.SetError(merr.WrapErrCodecOverflow(kind, n, netdata.MaxLength))
				return
			}
			w.PutUint16(uint16(n))
			for i := 0; i < n; i++ {
				elem.write(w, v.Index(i))
			}
		},
		read: func(r *netdata.DataReader, v reflect.Value) error {
			count, err := r.GetUint16()
			if err != nil {
				return err
			}
			n := int(count)
			// 定长元素在分配前校验总长度；变长元素无法预知总长度，按剩余字节数限制预分配容量。
			if elem.width > 0 && n*elem.width > r.AvailableBytes() {
				return merr.WrapErrCodecOutOfData(n*elem.width, r.AvailableBytes(), r.Position())
			}
			capHint := n
			if elem.width == 0 && capHint > r.AvailableBytes() {
				capHint = r.AvailableBytes()
			}
			s := reflect.MakeSlice(t, 0, capHint)
			for i := 0; i < n; i++ {
				s = reflect.Append(s, reflect.Zero(t.Elem()))
				if err := elem.read(r, s.Index(i)); err != nil {
					return err
				}
			}
			v.Set(s)
			return nil
		},
	}
}
