package network

import "strconv"

// DeliveryMethod 描述一条数据期望的投递语义。
//
// 取值与线上协议保持一致，独立构建的两端必须使用相同的数值。
// 可靠性、顺序与分片由传输层之外的通道实现负责，编解码层只负责透传该值。
type DeliveryMethod uint8

const (
	// ReliableUnordered 可靠但不保证顺序。
	ReliableUnordered DeliveryMethod = 0
	// Sequenced 不可靠，仅保留最新的一条，过期数据被丢弃。
	Sequenced DeliveryMethod = 1
	// ReliableOrdered 可靠且有序。
	ReliableOrdered DeliveryMethod = 2
	// ReliableSequenced 仅保证最后一条可靠送达，且有序。
	ReliableSequenced DeliveryMethod = 3
	// Unreliable 不可靠、无序，可能重复。
	Unreliable DeliveryMethod = 4
)

var deliveryMethodNames = map[DeliveryMethod]string{
	ReliableUnordered: "reliable_unordered",
	Sequenced:         "sequenced",
	ReliableOrdered:   "reliable_ordered",
	ReliableSequenced: "reliable_sequenced",
	Unreliable:        "unreliable",
}

func (m DeliveryMethod) String() string {
	if name, ok := deliveryMethodNames[m]; ok {
		return name
	}
	return "delivery_method(" + strconv.Itoa(int(m)) + ")"
}

// Reliable 报告该投递方式是否要求可靠送达。
func (m DeliveryMethod) Reliable() bool {
	return m == ReliableUnordered || m == ReliableOrdered || m == ReliableSequenced
}
