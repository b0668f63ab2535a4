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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Service related
	ErrServiceNotReady = newCodeError("service not ready", 1, true)
	ErrServiceInternal = newCodeError("service internal error", 5, false)

	// IO related
	ErrIoFailed = newCodeError("IO failed", 1001, false)

	// Parameter related
	ErrParameterInvalid  = newCodeError("invalid parameter", 1100, false)
	ErrParameterMissing  = newCodeError("missing parameter", 1101, false)
	ErrParameterTooLarge = newCodeError("parameter too large", 1102, false)

	// Codec related
	// ErrCodecOutOfData: a read needs more bytes than the user data region still holds.
	ErrCodecOutOfData = newCodeError("not enough data", 3100, false)
	// ErrCodecOverflow: a value does not fit the fixed-width prefix of its wire encoding.
	ErrCodecOverflow = newCodeError("encoding overflow", 3101, false)
	// ErrCodecInvalidData: the bytes are present but do not form a legal value (e.g. bool 0x07).
	ErrCodecInvalidData = newCodeError("invalid encoded data", 3102, false)
	// ErrCodecMalformedPacket is the umbrella kind for every decode-time failure of a packet.
	ErrCodecMalformedPacket  = newCodeError("malformed packet", 3103, false)
	ErrCodecUnregisteredType = newCodeError("unregistered packet type", 3104, false)
	ErrCodecDuplicateType    = newCodeError("packet type already registered", 3105, false)
	ErrCodecInvalidType      = newCodeError("unsupported packet type", 3106, false)

	// Transport related
	ErrTransportClosed = newCodeError("transport closed", 3200, false)
	ErrPeerNotFound    = newCodeError("peer not found", 3201, false)
	ErrPeerExists      = newCodeError("peer already exists", 3202, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to codeError
	errUnexpected = newCodeError("unexpected error", (1<<16)-1, false)
)

type codeError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
}

func newCodeError(msg string, code int32, retriable bool) codeError {
	return codeError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}
}

func (e codeError) code() int32 {
	return e.errCode
}

func (e codeError) Error() string {
	return e.msg
}

func (e codeError) Detail() string {
	return e.detail
}

func (e codeError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(codeError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

// Combine 合并多个错误，nil 会被忽略；全部为 nil 时返回 nil。
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
