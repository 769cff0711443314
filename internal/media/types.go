// Package media はキャプチャ済みファイルの一覧とサムネイル生成を扱う
package media

import (
	"errors"
	"time"
)

// Kind はメディアの種別
type Kind string

// Kind の定数定義
const (
	KindPhoto Kind = "photo" // 静止画
	KindVideo Kind = "video" // 動画
)

// Item はキャプチャ済みファイルの情報
type Item struct {
	Name       string    `json:"name"`        // ファイル名
	Kind       Kind      `json:"kind"`        // 種別
	SizeBytes  int64     `json:"size_bytes"`  // ファイルサイズ
	ModifiedAt time.Time `json:"modified_at"` // 更新日時
}

// エラー定義
var (
	ErrInvalidName  = errors.New("無効なファイル名です")
	ErrInvalidWidth = errors.New("無効な幅です")
	ErrNotFound     = errors.New("ファイルが見つかりません")
	ErrNotImage     = errors.New("画像ファイルではありません")
)

// Config はライブラリの設定
type Config struct {
	DefaultWidth int           // サムネイルの既定幅
	MaxWidth     int           // サムネイルの最大幅
	CacheTTL     time.Duration // サムネイルの保持期間
}

// DefaultConfig はデフォルトの設定を返す
func DefaultConfig() Config {
	return Config{
		DefaultWidth: 320,
		MaxWidth:     1920,
		CacheTTL:     10 * time.Minute,
	}
}

var kindByExt = map[string]Kind{
	".jpg":  KindPhoto,
	".jpeg": KindPhoto,
	".png":  KindPhoto,
	".mp4":  KindVideo,
}
