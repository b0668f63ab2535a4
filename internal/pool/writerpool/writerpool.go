// Copyright (c) 2016 Aliaksandr Valialkin, VertaMedia
//
// Use of this source code is governed by a MIT license that can be found
// at https://github.com/valyala/bytebufferpool/blob/master/LICENSE

// Package writerpool 实现了 netdata.DataWriter 的对象池，用于降低发送路径上的 GC 压力。
package writerpool

import (
	"math/bits"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
)

const (
	minBitSize = 6 // 2**6=64，为典型 CPU cache line 大小
	steps      = 20

	minSize = 1 << minBitSize

	calibrateCallsThreshold = 42000
	maxPercentile           = 0.95
)

// Pool 表示 DataWriter 的对象池。
//
// 说明：
//   - 不同用途可以使用不同的 Pool，以减少内存浪费；
//   - 内部会根据归还时的写入长度自动校准新建 Writer 的初始容量和最大可回收容量，
//     容量过大的 Writer 不会被回收。
type Pool struct {
	calls       [steps]uint64
	calibrating uint64

	defaultSize uint64
	maxSize     uint64

	pool sync.Pool
}

var builtinPool Pool

// New 创建一个在首次校准前以 initialSize 作为初始容量的 Pool。
func New(initialSize int) *Pool {
	p := &Pool{}
	if initialSize > 0 {
		p.defaultSize = uint64(initialSize)
	}
	return p
}

// Get 从默认池中获取一个空的 DataWriter。
func Get() *netdata.DataWriter { return builtinPool.Get() }

// Put 将 DataWriter 归还到默认池中。
//
// 注意：归还后的 DataWriter 以及通过 Bytes 取得的视图都不允许再被访问。
func Put(w *netdata.DataWriter) { builtinPool.Put(w) }

// Get 从指定 Pool 中获取一个 DataWriter，返回时 Length 为 0 且没有错误。
func (p *Pool) Get() *netdata.DataWriter {
	v := p.pool.Get()
	if v != nil {
		return v.(*netdata.DataWriter)
	}
	size := int(atomic.LoadUint64(&p.defaultSize))
	if size <= 0 {
		size = minSize
	}
	return netdata.NewDataWriterSize(size)
}

// Put 将通过 Get 获取的 DataWriter 归还到 Pool 中。
func (p *Pool) Put(w *netdata.DataWriter) {
	if w == nil {
		return
	}
	idx := index(w.Length())

	if atomic.AddUint64(&p.calls[idx], 1) > calibrateCallsThreshold {
		p.calibrate()
	}

	maxSize := int(atomic.LoadUint64(&p.maxSize))
	if maxSize == 0 || w.Capacity() <= maxSize {
		w.Reset()
		p.pool.Put(w)
	}
}

func (p *Pool) calibrate() {
	if !atomic.CompareAndSwapUint64(&p.calibrating, 0, 1) {
		return
	}

	a := make([]callSize, 0, steps)
	var callsSum uint64
	for i := uint64(0); i < steps; i++ {
		calls := atomic.SwapUint64(&p.calls[i], 0)
		callsSum += calls
		a = append(a, callSize{
			calls: calls,
			size:  minSize << i,
		})
	}
	// 按调用次数降序。
	slices.SortFunc(a, func(x, y callSize) int {
		switch {
		case x.calls > y.calls:
			return -1
		case x.calls < y.calls:
			return 1
		default:
			return 0
		}
	})

	defaultSize := a[0].size
	maxSize := defaultSize

	maxSum := uint64(float64(callsSum) * maxPercentile)
	callsSum = 0
	for i := 0; i < steps; i++ {
		if callsSum > maxSum {
			break
		}
		callsSum += a[i].calls
		size := a[i].size
		if size > maxSize {
			maxSize = size
		}
	}

	atomic.StoreUint64(&p.defaultSize, defaultSize)
	atomic.StoreUint64(&p.maxSize, maxSize)

	atomic.StoreUint64(&p.calibrating, 0)
}

type callSize struct {
	calls uint64
	size  uint64
}

func index(n int) int {
	n--
	n >>= minBitSize
	idx := 0
	if n > 0 {
		idx = bits.Len(uint(n))
	}
	if idx >= steps {
		idx = steps - 1
	}
	return idx
}
