package packet

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// ParseError 描述一个无法解析的包。
//
// errors.Is(err, merr.ErrCodecMalformedPacket) 对所有 ParseError 成立；
// 通过 Unwrap 可以取得具体原因，例如 merr.ErrCodecUnregisteredType 或 merr.ErrCodecOutOfData。
type ParseError struct {
	// TypeID 为从缓冲区读取到的类型标识，包头不完整时为 0。
	TypeID uint64
	// TypeName 为已注册类型的名称，未注册时为空。
	TypeName string
	// Position 为该包在读取器中的起始位置（相对可读区间）。
	Position int
	// Size 为读取器可读区间的总长度。
	Size int
	// Err 为具体原因。
	Err error
}

func (e *ParseError) Error() string {
	name := e.TypeName
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("malformed packet[type_id=%#016x][type=%s][position=%d][size=%d]: %v",
		e.TypeID, name, e.Position, e.Size, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is 使 ParseError 与 merr.ErrCodecMalformedPacket 等价。
func (e *ParseError) Is(target error) bool {
	return errors.Is(merr.ErrCodecMalformedPacket, target)
}
