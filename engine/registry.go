package engine

import (
	"time"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// Availability 设备在线状态
type Availability int

const (
	AvailabilityUnknown Availability = iota
	AvailabilityOnline
	AvailabilityOffline
)

func (a Availability) String() string {
	switch a {
	case AvailabilityOnline:
		return "online"
	case AvailabilityOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// DeviceRecord 设备状态的只读副本
type DeviceRecord struct {
	Identity     DeviceIdentity
	Name         string
	DeviceType   string
	RSSI         int
	LastSeen     time.Time
	Metrics      MetricSet
	Availability Availability
}

type device struct {
	identity     DeviceIdentity
	name         string
	deviceType   string
	rssi         int
	lastSeen     time.Time
	metrics      MetricSet
	availability Availability
	emit         *EmitState
}

func (d *device) record() DeviceRecord {
	var metrics MetricSet
	if nil != d.metrics {
		metrics = d.metrics.Clone()
	}
	return DeviceRecord{
		Identity:     d.identity,
		Name:         d.name,
		DeviceType:   d.deviceType,
		RSSI:         d.rssi,
		LastSeen:     d.lastSeen,
		Metrics:      metrics,
		Availability: d.availability,
	}
}

// 统计未知设备时最多记录的地址数
const maxUnknownIdentities = 1024
