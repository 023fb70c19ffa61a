package edgex

import (
	"sync"
	"time"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// ExpiringMap 是并发安全、每个Key带独立过期时间的Map。
type ExpiringMap struct {
	mm    map[string]*entry
	mutex *sync.RWMutex
	now   func() time.Time
}

func NewExpiringMapWithClock(now func() time.Time) *ExpiringMap {
	if nil == now {
		now = time.Now
	}
	return &ExpiringMap{
		mm:    make(map[string]*entry),
		mutex: new(sync.RWMutex),
		now:   now,
	}
}

// PutAll 以同一个缓存时间批量设置，覆盖已存在的值，并清理已过期的Key。timeout<=0表示永不过期。
func (slf *ExpiringMap) PutAll(values map[string]string, timeout time.Duration) {
	now := slf.now()
	slf.mutex.Lock()
	defer slf.mutex.Unlock()
	for k, e := range slf.mm {
		if e.expired(now) {
			delete(slf.mm, k)
		}
	}
	for k, v := range values {
		slf.mm[k] = newEntry(v, now, timeout)
	}
}

// Snapshot 返回所有未过期值的副本
func (slf *ExpiringMap) Snapshot() map[string]interface{} {
	now := slf.now()
	slf.mutex.RLock()
	defer slf.mutex.RUnlock()
	out := make(map[string]interface{}, len(slf.mm))
	for k, e := range slf.mm {
		if !e.expired(now) {
			out[k] = e.value
		}
	}
	return out
}

////

type entry struct {
	value  interface{}
	expire time.Time
}

func newEntry(value interface{}, now time.Time, timeout time.Duration) *entry {
	var expire time.Time
	if timeout > 0 {
		expire = now.Add(timeout)
	}
	return &entry{
		value:  value,
		expire: expire,
	}
}

func (e *entry) expired(now time.Time) bool {
	return !e.expire.IsZero() && now.After(e.expire)
}
