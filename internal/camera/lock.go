package camera

import "sync"

// DeviceLocks はデバイス識別子ごとの排他制御
// 異なるデバイスの呼び出し同士はブロックしない
type DeviceLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewDeviceLocks は新しいDeviceLocksを作成する
func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{held: make(map[string]struct{})}
}

// TryAcquire はロックの取得を試みる。待機はしない
// 返されたrelease関数は複数回呼んでも安全
func (l *DeviceLocks) TryAcquire(id string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[id]; busy {
		return nil, false
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, true
}

// Held は指定デバイスのロックが保持されているか返す
func (l *DeviceLocks) Held(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.held[id]
	return busy
}
