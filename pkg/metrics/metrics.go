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
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// netcodecNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	netcodecNamespace = "netcodec"

	// 以下为当前使用的通用标签名。
	typeLabelName      = "type"
	reasonLabelName    = "reason"
	directionLabelName = "direction"
	levelLabelName     = "level"

	// 标签取值。
	DirectionIn  = "in"
	DirectionOut = "out"

	ReasonTruncatedHeader = "truncated_header"
	ReasonUnregistered    = "unregistered"
	ReasonDecode          = "decode"
)

var (
	// sizeBuckets 为单个包/数据报大小的桶划分，单位为字节。
	// 实际桶分布为：[8 16 32 64 128 256 512 1024 2048 4096 8192 16384 32768 65536]
	sizeBuckets = prometheus.ExponentialBuckets(8, 2, 14)

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，多次调用只会注册一次。
func Register(r prometheus.Registerer) {
	RegisterPacketMetrics(r)
	RegisterTransportMetrics(r)
	RegisterLoggingMetrics(r)
	metricRegisterer = r
}
