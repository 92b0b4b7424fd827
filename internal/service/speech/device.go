package speech

import (
	"fmt"
	"sync"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
)

// Device 是共享的音频输出设备，同一时刻只能有一个持有者。
type Device interface {
	Acquire(owner string) error
	Release(owner string)
}

// ExclusiveDevice 是进程内的互斥设备实现。
type ExclusiveDevice struct {
	mu    sync.Mutex
	owner string
}

func NewExclusiveDevice() *ExclusiveDevice {
	return &ExclusiveDevice{}
}

// Acquire 在设备空闲或已被同一持有者占用时成功。
func (d *ExclusiveDevice) Acquire(owner string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner != "" && d.owner != owner {
		return fmt.Errorf("%w: audio device held by %s", apperr.ErrResource, d.owner)
	}
	d.owner = owner
	return nil
}

// Release 只释放自己持有的设备，重复释放无副作用。
func (d *ExclusiveDevice) Release(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner == owner {
		d.owner = ""
	}
}

// Owner 返回当前持有者，空字符串表示空闲。
func (d *ExclusiveDevice) Owner() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.owner
}
