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

package log

import (
	"bytes"
	"sync"
)

// TestingT 是 InitTestLogger 需要的 testing.TB 子集。
type TestingT interface {
	Logf(format string, args ...any)
	Fail()
	Cleanup(fn func())
}

// testingWriter 把每条日志转成一次 t.Logf。
// 测试的 Cleanup 执行后 done 置位，此后的写入直接丢弃。
type testingWriter struct {
	t          TestingT
	state      *writerState
	markFailed bool
}

type writerState struct {
	mu   sync.RWMutex
	done bool
}

func newTestingWriter(t TestingT) testingWriter {
	st := &writerState{}
	t.Cleanup(func() {
		st.mu.Lock()
		st.done = true
		st.mu.Unlock()
	})
	return testingWriter{t: t, state: st}
}

// markingFailed 返回一个写入时同时把测试标记为失败的副本。
func (w testingWriter) markingFailed() testingWriter {
	w.markFailed = true
	return w
}

func (w testingWriter) Write(p []byte) (int, error) {
	w.state.mu.RLock()
	defer w.state.mu.RUnlock()
	if w.state.done {
		return len(p), nil
	}
	// t.Logf 自带换行
	w.t.Logf("%s", bytes.TrimRight(p, "\n"))
	if w.markFailed {
		w.t.Fail()
	}
	return len(p), nil
}

func (w testingWriter) Sync() error {
	return nil
}
