package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Options はオーケストレーターの設定
// 保存先やデバイス名はグローバル変数ではなくここで注入する
type Options struct {
	Platform          Platform
	SaveDir           string
	Driver            DriverOptions
	PhotoTimeout      time.Duration
	VideoDuration     time.Duration
	VideoTimeoutGrace time.Duration
	StreamChunkSize   int
}

// デフォルト値
const (
	DefaultPhotoTimeout      = 15 * time.Second
	DefaultVideoDuration     = 10 * time.Second
	DefaultVideoTimeoutGrace = 15 * time.Second
)

// Manager はデバイス解決からキャプチャ、ストリーム中継までを統括する
type Manager struct {
	opts      Options
	exec      Executor
	locks     *DeviceLocks
	validator *OutputValidator
	relay     *StreamRelay
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewManager は新しいManagerを作成する
func NewManager(opts Options, exec Executor, log logrus.FieldLogger) *Manager {
	if opts.Platform == "" {
		opts.Platform = CurrentPlatform()
	}
	if opts.SaveDir == "" {
		opts.SaveDir = "photos"
	}
	if abs, err := filepath.Abs(opts.SaveDir); err == nil {
		opts.SaveDir = abs
	}
	if opts.Driver.Tools == (ToolPaths{}) {
		opts.Driver.Tools = DefaultToolPaths(opts.Platform)
	}
	if opts.PhotoTimeout <= 0 {
		opts.PhotoTimeout = DefaultPhotoTimeout
	}
	if opts.VideoDuration <= 0 {
		opts.VideoDuration = DefaultVideoDuration
	}
	if opts.VideoTimeoutGrace <= 0 {
		opts.VideoTimeoutGrace = DefaultVideoTimeoutGrace
	}

	locks := NewDeviceLocks()
	return &Manager{
		opts:      opts,
		exec:      exec,
		locks:     locks,
		validator: NewOutputValidator(log),
		relay:     NewStreamRelay(exec, locks, log, opts.StreamChunkSize),
		log:       log,
		now:       time.Now,
	}
}

// Platform は対象プラットフォームを返す
func (m *Manager) Platform() Platform {
	return m.opts.Platform
}

// SaveDir は保存先ディレクトリ（絶対パス）を返す
func (m *Manager) SaveDir() string {
	return m.opts.SaveDir
}

// Resolve は現在のカメラを解決する
func (m *Manager) Resolve(ctx context.Context) (DeviceDescriptor, error) {
	driver, err := m.driver()
	if err != nil {
		return DeviceDescriptor{}, err
	}
	return driver.Resolve(ctx)
}

// Capture は写真または固定長の動画を撮影する
// timeoutが0の場合は種別ごとのデフォルト値を使う
// エラー時は出力先に部分ファイルを残さない
func (m *Manager) Capture(ctx context.Context, kind CaptureKind, timeout time.Duration) (*CaptureResult, error) {
	var ext string
	switch kind {
	case KindPhoto:
		ext = "jpg"
	case KindVideo:
		ext = "mp4"
	default:
		return nil, fmt.Errorf("有限キャプチャではありません: %s", kind)
	}

	driver, err := m.driver()
	if err != nil {
		return nil, err
	}

	dev, err := driver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	log := m.log.WithField("device", dev.Identifier).WithField("kind", kind)
	log.Debug("カメラを解決しました")

	if err := m.ensureSaveDir(); err != nil {
		return nil, err
	}

	req := CaptureRequest{
		Kind:          kind,
		TargetPath:    filepath.Join(m.opts.SaveDir, fmt.Sprintf("%s_%d.%s", kind, m.now().UnixMilli(), ext)),
		Timeout:       timeout,
		FixedDuration: m.opts.VideoDuration,
	}
	if req.Timeout == 0 {
		req.Timeout = m.defaultTimeout(kind)
	}

	inv, err := driver.BuildCommand(dev, req)
	if err != nil {
		return nil, err
	}
	log.WithField("argv", inv.Argv()).Debug("キャプチャコマンドを構築しました")

	release, ok := m.locks.TryAcquire(dev.Identifier)
	if !ok {
		return nil, newError(KindDeviceBusy, "デバイス %s は使用中です", dev.Identifier)
	}
	defer release()

	startedAt := m.now()
	result, err := m.exec.RunToCompletion(ctx, inv, req.Timeout)
	if len(result.Stderr) > 0 {
		log.Debugf("Capture logs: %s", result.Stderr)
	}
	if err != nil {
		m.validator.Discard(req.TargetPath)
		log.WithError(err).Warn("キャプチャに失敗しました")
		return nil, err
	}
	if result.ExitCode != 0 {
		m.validator.Discard(req.TargetPath)
		cerr := executionFailed(result.ExitCode, result.Stderr)
		log.WithError(cerr).Warn("キャプチャツールが異常終了しました")
		return nil, cerr
	}

	res, err := m.validator.Validate(req.TargetPath, startedAt)
	if err != nil {
		log.WithError(err).Warn("キャプチャ結果の検証に失敗しました")
		return nil, err
	}

	log.WithField("path", res.Path).WithField("size", res.SizeBytes).Info("キャプチャが完了しました")
	return res, nil
}

// StartStream はライブストリームを開始する
// ctxの終了（クライアント切断）でストリームは停止する
func (m *Manager) StartStream(ctx context.Context) (*StreamHandle, error) {
	driver, err := m.driver()
	if err != nil {
		return nil, err
	}

	dev, err := driver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := driver.BuildCommand(dev, CaptureRequest{Kind: KindStream})
	if err != nil {
		return nil, err
	}
	m.log.WithField("argv", inv.Argv()).Debug("ストリームコマンドを構築しました")

	return m.relay.Start(ctx, dev, inv)
}

// StopStream は指定IDのストリームを停止する
func (m *Manager) StopStream(id string) error {
	return m.relay.Stop(id)
}

// Streams はアクティブなストリーム一覧を返す
func (m *Manager) Streams() []StreamInfo {
	return m.relay.Streams()
}

// Close は全てのストリームを停止する
func (m *Manager) Close() {
	m.relay.StopAll()
}

// driver はリクエスト毎にプラットフォームのドライバーを選択する
func (m *Manager) driver() (CameraDeviceDriver, error) {
	return NewDriver(m.opts.Platform, m.opts.Driver, m.exec)
}

func (m *Manager) defaultTimeout(kind CaptureKind) time.Duration {
	if kind == KindVideo {
		return m.opts.VideoDuration + m.opts.VideoTimeoutGrace
	}
	return m.opts.PhotoTimeout
}

// ensureSaveDir は保存先ディレクトリを作成する（既存なら何もしない）
func (m *Manager) ensureSaveDir() error {
	if err := os.MkdirAll(m.opts.SaveDir, 0755); err != nil {
		return fmt.Errorf("保存先ディレクトリの作成に失敗: %w", err)
	}
	return nil
}
