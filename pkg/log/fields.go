package log

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	FieldNameComponent = "component"
	FieldNamePeer      = "peer"
	FieldNameRemote    = "remote"
	FieldNameTypeID    = "typeID"
	FieldNameTypeName  = "typeName"
	FieldNameStage     = "stage"
)

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldPeer 返回一个包含对端 id 的 zap 字段。
func FieldPeer(id int32) zap.Field {
	return zap.Int32(FieldNamePeer, id)
}

// FieldTypeID 以十六进制输出包类型标识，与错误信息中的格式保持一致。
func FieldTypeID(id uint64) zap.Field {
	return zap.String(FieldNameTypeID, fmt.Sprintf("%#016x", id))
}

// FieldTypeName 返回一个包含包类型名的 zap 字段。
func FieldTypeName(name string) zap.Field {
	return zap.String(FieldNameTypeName, name)
}

// FieldStage 返回一个包含收发阶段的 zap 字段。
func FieldStage(stage fmt.Stringer) zap.Field {
	return zap.Stringer(FieldNameStage, stage)
}
