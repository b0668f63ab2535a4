// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case codeError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := err.(codeError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// Service 相关错误封装。
func WrapErrServiceNotReady(role string, state string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceNotReady,
		state,
		value("role", role),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrServiceInternal(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceInternal, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// IO 相关错误封装。
func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

// Parameter 相关错误封装。
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidRange[T any](lower, upper, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		bound("value", actual, lower, upper),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterTooLarge(name string, size, limit int, msg ...string) error {
	err := wrapFields(ErrParameterTooLarge,
		value("name", name),
		value("size", size),
		value("limit", limit),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Codec 相关错误封装。

// WrapErrCodecOutOfData 描述一次越界读取：需要 need 字节，但自 position 起仅剩 available 字节。
func WrapErrCodecOutOfData(need, available, position int) error {
	return wrapFields(ErrCodecOutOfData,
		value("need", need),
		value("available", available),
		value("position", position),
	)
}

// WrapErrCodecOverflow 描述一次无法用定长前缀表示的写入。
func WrapErrCodecOverflow(kind string, size, limit int) error {
	return wrapFields(ErrCodecOverflow,
		value("kind", kind),
		bound("size", size, 0, limit),
	)
}

func WrapErrCodecInvalidData(kind string, detail string) error {
	return wrapFieldsWithDesc(ErrCodecInvalidData, detail, value("kind", kind))
}

func WrapErrCodecUnregisteredType(typeID uint64, typeName ...string) error {
	fields := []errorField{value("type_id", fmt.Sprintf("%#016x", typeID))}
	if len(typeName) > 0 && typeName[0] != "" {
		fields = append(fields, value("type", typeName[0]))
	}
	return wrapFields(ErrCodecUnregisteredType, fields...)
}

func WrapErrCodecDuplicateType(typeName string, typeID uint64) error {
	return wrapFields(ErrCodecDuplicateType,
		value("type", typeName),
		value("type_id", fmt.Sprintf("%#016x", typeID)),
	)
}

func WrapErrCodecInvalidType(typeName string, reason string) error {
	return wrapFieldsWithDesc(ErrCodecInvalidType, reason, value("type", typeName))
}

// Transport 相关错误封装。
func WrapErrTransportClosed(addr string) error {
	return wrapFields(ErrTransportClosed, value("addr", addr))
}

func WrapErrPeerNotFound(id int32) error {
	return wrapFields(ErrPeerNotFound, value("peer", id))
}

func WrapErrPeerExists(id int32) error {
	return wrapFields(ErrPeerExists, value("peer", id))
}

func wrapFields(err codeError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err codeError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}
