// Package events はデバイス登録などの通知をメッセージキューへ送る
package events

import (
	"context"
	"sync"
)

// DeviceCreated はデバイス登録後に送るメッセージ
type DeviceCreated struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Publisher は通知の送信先
type Publisher interface {
	PublishDeviceCreated(ctx context.Context, ev DeviceCreated) error
	Close() error
}

// NoopPublisher はキューに接続できない場合に使う何もしない実装
type NoopPublisher struct{}

func (NoopPublisher) PublishDeviceCreated(context.Context, DeviceCreated) error { return nil }

func (NoopPublisher) Close() error { return nil }

// MemoryPublisher は送信したメッセージを保持する
type MemoryPublisher struct {
	mu     sync.Mutex
	events []DeviceCreated
}

func (p *MemoryPublisher) PublishDeviceCreated(_ context.Context, ev DeviceCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events は送信済みメッセージのコピーを返す
func (p *MemoryPublisher) Events() []DeviceCreated {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DeviceCreated(nil), p.events...)
}

var (
	_ Publisher = NoopPublisher{}
	_ Publisher = (*MemoryPublisher)(nil)
	_ Publisher = (*AMQPPublisher)(nil)
)
