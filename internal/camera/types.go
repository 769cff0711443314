package camera

import (
	"fmt"
	"runtime"
	"time"
)

// Platform はカメラを扱うOSファミリーを表す
type Platform string

const (
	PlatformMacOS   Platform = "macos"   // imagesnap / avfoundation
	PlatformWindows Platform = "windows" // ffmpeg dshow
	PlatformLinux   Platform = "linux"   // ffmpeg video4linux2
)

// PlatformFromGOOS はruntime.GOOSの値をPlatformに変換する
// 対応していないOSの場合はそのままの値を返し、解決時にUnsupportedPlatformとなる
func PlatformFromGOOS(goos string) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	default:
		return Platform(goos)
	}
}

// CurrentPlatform は実行中のOSのPlatformを返す
func CurrentPlatform() Platform {
	return PlatformFromGOOS(runtime.GOOS)
}

// CaptureKind はキャプチャの種類を表す
type CaptureKind string

const (
	KindPhoto  CaptureKind = "photo"  // 単一フレーム
	KindVideo  CaptureKind = "video"  // 固定長の動画
	KindStream CaptureKind = "stream" // MPEG-TSのライブストリーム
)

// DeviceDescriptor は解決済みのカメラデバイス
// リクエスト毎に生成し、キャッシュしない
type DeviceDescriptor struct {
	Platform   Platform `json:"platform"`
	Identifier string   `json:"identifier"`
}

// CaptureRequest は1回のキャプチャ要求
type CaptureRequest struct {
	Kind          CaptureKind
	TargetPath    string        // Streamの場合は空
	Timeout       time.Duration // 0の場合はデフォルト
	FixedDuration time.Duration // Video用
}

// Validate はリクエストの妥当性を検証する
func (r CaptureRequest) Validate() error {
	switch r.Kind {
	case KindPhoto:
		if r.TargetPath == "" {
			return fmt.Errorf("出力先パスが指定されていません")
		}
	case KindVideo:
		if r.TargetPath == "" {
			return fmt.Errorf("出力先パスが指定されていません")
		}
		if r.FixedDuration <= 0 {
			return fmt.Errorf("無効な録画時間: %s", r.FixedDuration)
		}
	case KindStream:
	default:
		return fmt.Errorf("サポートされていないキャプチャ種別: %s", r.Kind)
	}

	if r.Timeout < 0 {
		return fmt.Errorf("無効なタイムアウト: %s", r.Timeout)
	}

	return nil
}

// CaptureResult は成功したキャプチャの成果物
type CaptureResult struct {
	Path       string `json:"path"`
	SizeBytes  int64  `json:"size_bytes"`
	DurationMs int64  `json:"duration_ms"`
}

// Invocation は外部キャプチャツールの起動内容（argv形式）
// シェルを経由しないため引数の内容は解釈されない
type Invocation struct {
	Program string
	Args    []string
}

// Argv はプログラム名を含む引数列を返す
func (i Invocation) Argv() []string {
	argv := make([]string, 0, len(i.Args)+1)
	argv = append(argv, i.Program)
	return append(argv, i.Args...)
}
