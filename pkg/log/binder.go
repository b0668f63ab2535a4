package log

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Binder 嵌入到组件中，为组件提供一个可替换的 Logger。
// 零值可用，未绑定时每次调用 Logger 都基于当前全局 Logger 生成。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 替换组件的 Logger，传入 nil 时恢复为跟随全局 Logger。
func (b *Binder) SetLogger(logger *MLogger) {
	b.logger.Store(logger)
}

// BindComponent 绑定一个带 component 字段的 Logger，fields 一并附加。
func (b *Binder) BindComponent(component string, fields ...zap.Field) {
	b.logger.Store(With(append([]zap.Field{FieldComponent(component)}, fields...)...))
}

// Logger 返回组件的 Logger。
func (b *Binder) Logger() *MLogger {
	if l := b.logger.Load(); l != nil {
		return l
	}
	return With()
}
