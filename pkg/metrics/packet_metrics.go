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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	packetMetricSubsystem = "packet"
)

var (
	PacketMetricsRegisterOnce sync.Once

	PacketDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: netcodecNamespace,
		Subsystem: packetMetricSubsystem,
		Name:      "dispatched_total",
		Help:      "成功解码并分发给订阅者的包数量",
	}, []string{typeLabelName})

	PacketMalformedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: netcodecNamespace,
		Subsystem: packetMetricSubsystem,
		Name:      "malformed_total",
		Help:      "无法解析的包数量，按原因区分",
	}, []string{reasonLabelName})

	PacketEncodedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: netcodecNamespace,
		Subsystem: packetMetricSubsystem,
		Name:      "encoded_total",
		Help:      "成功编码的包数量",
	}, []string{typeLabelName})

	PacketEncodedBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: netcodecNamespace,
		Subsystem: packetMetricSubsystem,
		Name:      "encoded_bytes",
		Help:      "单个包编码后的字节数（含 8 字节类型标识）",
		Buckets:   sizeBuckets,
	})
)

// RegisterPacketMetrics 将编解码与分发相关的指标注册到 Prometheus 中。
func RegisterPacketMetrics(registry prometheus.Registerer) {
	PacketMetricsRegisterOnce.Do(func() {
		registry.MustRegister(PacketDispatchedTotal)
		registry.MustRegister(PacketMalformedTotal)
		registry.MustRegister(PacketEncodedTotal)
		registry.MustRegister(PacketEncodedBytes)
	})
}
