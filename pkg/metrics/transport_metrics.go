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
	transportMetricSubsystem = "transport"
)

var (
	TransportMetricsRegisterOnce sync.Once

	TransportDatagramsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: netcodecNamespace,
		Subsystem: transportMetricSubsystem,
		Name:      "datagrams_total",
		Help:      "收发的数据报数量",
	}, []string{directionLabelName})

	TransportBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: netcodecNamespace,
		Subsystem: transportMetricSubsystem,
		Name:      "bytes_total",
		Help:      "收发的数据报总字节数（压缩后）",
	}, []string{directionLabelName})

	TransportErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: netcodecNamespace,
		Subsystem: transportMetricSubsystem,
		Name:      "errors_total",
		Help:      "收发失败次数",
	}, []string{directionLabelName})

	TransportDatagramBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: netcodecNamespace,
		Subsystem: transportMetricSubsystem,
		Name:      "datagram_bytes",
		Help:      "单个数据报的字节数",
		Buckets:   sizeBuckets,
	}, []string{directionLabelName})
)

// RegisterTransportMetrics 将传输层相关的指标注册到 Prometheus 中。
func RegisterTransportMetrics(registry prometheus.Registerer) {
	TransportMetricsRegisterOnce.Do(func() {
		registry.MustRegister(TransportDatagramsTotal)
		registry.MustRegister(TransportBytesTotal)
		registry.MustRegister(TransportErrorsTotal)
		registry.MustRegister(TransportDatagramBytes)
	})
}
