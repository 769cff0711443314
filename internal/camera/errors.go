package camera

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorKind はキャプチャエラーの種別
type ErrorKind string

const (
	KindUnsupportedPlatform ErrorKind = "unsupported_platform"
	KindCameraNotFound      ErrorKind = "camera_not_found"
	KindExecutionFailed     ErrorKind = "execution_failed"
	KindOutputMissing       ErrorKind = "output_missing"
	KindDeviceBusy          ErrorKind = "device_busy"
	KindTimeout             ErrorKind = "timeout"
)

// CaptureError はオーケストレーターが返す構造化エラー
// 内部でリトライは行わない
type CaptureError struct {
	Kind     ErrorKind
	ExitCode int    // ExecutionFailedのみ
	Stderr   string // ExecutionFailedのみ（末尾の抜粋）
	Err      error
}

// errors.Is 用の番兵値
var (
	ErrUnsupportedPlatform = &CaptureError{Kind: KindUnsupportedPlatform}
	ErrCameraNotFound      = &CaptureError{Kind: KindCameraNotFound}
	ErrExecutionFailed     = &CaptureError{Kind: KindExecutionFailed}
	ErrOutputMissing       = &CaptureError{Kind: KindOutputMissing}
	ErrDeviceBusy          = &CaptureError{Kind: KindDeviceBusy}
	ErrTimeout             = &CaptureError{Kind: KindTimeout}
)

func (e *CaptureError) Error() string {
	var b strings.Builder
	b.WriteString("camera: ")
	b.WriteString(string(e.Kind))
	if e.Kind == KindExecutionFailed {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
		if e.Stderr != "" {
			fmt.Fprintf(&b, ": %s", e.Stderr)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Is は種別が一致すれば同一のエラーとみなす
func (e *CaptureError) Is(target error) bool {
	t, ok := target.(*CaptureError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...interface{}) *CaptureError {
	return &CaptureError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func executionFailed(exitCode int, stderr []byte) *CaptureError {
	return &CaptureError{
		Kind:     KindExecutionFailed,
		ExitCode: exitCode,
		Stderr:   stderrExcerpt(stderr),
	}
}

const stderrExcerptLimit = 512

// stderrExcerpt はstderrの末尾を切り出す
// ffmpegは最後の数行にエラー内容を出力する
func stderrExcerpt(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) <= stderrExcerptLimit {
		return s
	}
	// マルチバイト文字の途中で切らない
	cut := len(s) - stderrExcerptLimit
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return strings.TrimSpace(s[cut:])
}
