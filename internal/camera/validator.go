package camera

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// OutputValidator は有限キャプチャの成果物を検証する
type OutputValidator struct {
	log logrus.FieldLogger
	now func() time.Time
}

// NewOutputValidator は新しいOutputValidatorを作成する
func NewOutputValidator(log logrus.FieldLogger) *OutputValidator {
	return &OutputValidator{log: log, now: time.Now}
}

// ValidateOutput はログを出力しないバリデーターで検証する
func ValidateOutput(path string, startedAt time.Time) (*CaptureResult, error) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewOutputValidator(log).Validate(path, startedAt)
}

// Validate は出力ファイルが存在し空でないことを確認する
// ツールが正常終了してもファイルが無い場合はKindOutputMissingを返し、残骸を削除する
func (v *OutputValidator) Validate(path string, startedAt time.Time) (*CaptureResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		v.Discard(path)
		return nil, newError(KindOutputMissing, "出力ファイルが見つかりません: %s", path)
	}
	if !info.Mode().IsRegular() {
		return nil, newError(KindOutputMissing, "出力先が通常ファイルではありません: %s", path)
	}
	if info.Size() == 0 {
		v.Discard(path)
		return nil, newError(KindOutputMissing, "出力ファイルが空です: %s", path)
	}

	duration := v.now().Sub(startedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	return &CaptureResult{
		Path:       path,
		SizeBytes:  info.Size(),
		DurationMs: duration,
	}, nil
}

// Discard は書きかけのファイルを削除する
// 削除の失敗はログに残すだけで呼び出し元には返さない
func (v *OutputValidator) Discard(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		v.log.WithError(err).WithField("path", path).Warn("部分ファイルの削除に失敗")
	}
}
