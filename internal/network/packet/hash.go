package packet

import (
	"hash/fnv"
	"reflect"
)

// Named 允许类型固定自己在线上使用的名称。
//
// 默认名称为 PkgPath + "." + Name，随包路径变化；需要与其它代码库（或重构后的自身）
// 互通的包类型应实现该接口，返回一个稳定的全限定名，例如 "Game.Packets.Move"。
// 方法会在一个零值 *T 上调用，不得依赖字段内容。
type Named interface {
	PacketTypeName() string
}

var namedType = reflect.TypeFor[Named]()

// Hash 计算 name 的 64 位 FNV-1 值（先乘后异或，与 FNV-1a 不同）。
func Hash(name string) uint64 {
	h := fnv.New64()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// TypeName 返回类型在线上使用的名称，指针类型按其元素类型计算。
func TypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if reflect.PointerTo(t).Implements(namedType) {
		return reflect.New(t).Interface().(Named).PacketTypeName()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// GetHash 返回类型的线上标识。
func GetHash(t reflect.Type) uint64 {
	return Hash(TypeName(t))
}

// HashOf 返回类型 T 的线上标识。
func HashOf[T any]() uint64 {
	return GetHash(reflect.TypeFor[T]())
}
