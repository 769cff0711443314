// Package device はカメラデバイスの台帳（登録・一覧・更新・削除）を扱う
package device

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound は指定IDのデバイスが存在しない場合のエラー
var ErrNotFound = errors.New("デバイスが見つかりません")

// Device は登録済みデバイスのレコード
type Device struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Input は登録・更新時の入力
type Input struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description" binding:"required"`
}

// Store はデバイス台帳の永続化層
type Store interface {
	Create(ctx context.Context, in Input) (Device, error)
	List(ctx context.Context) ([]Device, error)
	Update(ctx context.Context, id int64, in Input) error
	Delete(ctx context.Context, id int64) error
	// Ping は永続化先に到達できるか確認する
	Ping(ctx context.Context) error
}
