package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shashin/internal/camera"
)

// clearEnv はテスト中に上書き用の環境変数を無効にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_HOST", "PORT", "APP_URL", "DATABASE_DRIVER", "DATABASE_URL", "RABBITMQ_URL",
		"SAVE_DIR", "CAMERA_DEVICE_NAME", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

// TestConfigLoad はデフォルト設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	// WriteTimeout は 0（無効）
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)

	assert.Equal(t, "photos", cfg.Capture.SaveDir)
	assert.Equal(t, "HD Pro Webcam C920", cfg.Capture.WindowsDeviceName)
	assert.Equal(t, 15*time.Second, cfg.Capture.PhotoTimeout)
	assert.Equal(t, 10*time.Second, cfg.Capture.VideoDuration)
	assert.Equal(t, 15*time.Second, cfg.Capture.VideoTimeoutGrace)
	assert.Equal(t, "/dev", cfg.Capture.VideoDevDir)
	assert.Equal(t, 32*1024, cfg.Capture.StreamChunkSize)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Database.ConnectRetry)
	assert.Equal(t, 5*time.Second, cfg.Database.RetryInterval)
	assert.Equal(t, "device_created", cfg.Queue.Name)
	assert.Equal(t, 5*time.Second, cfg.Queue.DialTimeout)

	assert.Equal(t, 320, cfg.Media.ThumbnailWidth)
	assert.Equal(t, 1920, cfg.Media.MaxThumbnailWidth)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	clearEnv(t)

	testCases := []struct {
		name      string
		modify    func(c *Config)
		expectErr bool
	}{
		{name: "正常な設定", modify: func(c *Config) {}},
		{name: "無効なポート番号", modify: func(c *Config) { c.Server.Port = 99999 }, expectErr: true},
		{name: "保存先なし", modify: func(c *Config) { c.Capture.SaveDir = "" }, expectErr: true},
		{name: "未対応のプラットフォーム", modify: func(c *Config) { c.Capture.Platform = "beos" }, expectErr: true},
		{name: "プラットフォーム指定", modify: func(c *Config) { c.Capture.Platform = "windows" }},
		{name: "録画時間0", modify: func(c *Config) { c.Capture.VideoDuration = 0 }, expectErr: true},
		{name: "小さすぎるチャンク", modify: func(c *Config) { c.Capture.StreamChunkSize = 10 }, expectErr: true},
		{name: "無効なログレベル", modify: func(c *Config) { c.Log.Level = "verbose" }, expectErr: true},
		{name: "無効なログ形式", modify: func(c *Config) { c.Log.Format = "xml" }, expectErr: true},
		{name: "サムネイル上限が既定幅未満", modify: func(c *Config) { c.Media.MaxThumbnailWidth = 100 }, expectErr: true},
		{name: "メモリ上の台帳", modify: func(c *Config) { c.Database.Driver = "memory"; c.Database.URL = "" }},
		{name: "未対応のデータベース", modify: func(c *Config) { c.Database.Driver = "mysql" }, expectErr: true},
		{name: "接続先なし", modify: func(c *Config) { c.Database.URL = "" }, expectErr: true},
		{name: "負のタイムアウト", modify: func(c *Config) { c.Server.ReadTimeout = -time.Second }, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tc.modify(cfg)
			err = cfg.Validate()
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	assert.Equal(t, "192.168.1.100:9090", cfg.ServerAddress())
}

// TestEnvironmentVariables は環境変数の処理をテストする
func TestEnvironmentVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_HOST", "test.example.com")
	t.Setenv("PORT", "9999")
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "postgres://db/devices")
	t.Setenv("RABBITMQ_URL", "amqp://mq/")
	t.Setenv("SAVE_DIR", "/var/lib/shashin")
	t.Setenv("CAMERA_DEVICE_NAME", "Logitech BRIO")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test.example.com", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "postgres://db/devices", cfg.Database.URL)
	assert.Equal(t, "amqp://mq/", cfg.Queue.URL)
	assert.Equal(t, "/var/lib/shashin", cfg.Capture.SaveDir)
	assert.Equal(t, "Logitech BRIO", cfg.Capture.WindowsDeviceName)
	assert.Equal(t, "debug", cfg.Log.Level)
}

// TestInvalidPortFromEnvironment は数値でないPORTを無視することをテストする
func TestInvalidPortFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

// TestLoadFile はYAMLファイルからの読み込みをテストする
func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "shashin.yaml")
	content := `
server:
  port: 3000
capture:
  save_dir: /srv/captures
  platform: linux
  photo_timeout: 5s
  ffmpeg_path: /opt/ffmpeg/bin/ffmpeg
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "ファイルに無い項目はデフォルト値")
	assert.Equal(t, "/srv/captures", cfg.Capture.SaveDir)
	assert.Equal(t, 5*time.Second, cfg.Capture.PhotoTimeout)
	assert.Equal(t, 10*time.Second, cfg.Capture.VideoDuration)
	assert.Equal(t, "json", cfg.Log.Format)

	// 環境変数はファイルより優先する
	t.Setenv("PORT", "4000")
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)

	opts := cfg.CameraOptions()
	assert.Equal(t, camera.PlatformLinux, opts.Platform)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", opts.Driver.Tools.FFmpeg)
	assert.Equal(t, "v4l2-ctl", opts.Driver.Tools.V4L2Ctl)
	assert.Equal(t, 5*time.Second, opts.PhotoTimeout)
	assert.Equal(t, "/dev", opts.Driver.VideoDevDir)
}

// TestLoadFileErrors は読み込み失敗をテストする
func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("server: [1, 2"), 0644))
	_, err = LoadFile(broken)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("capture:\n  platform: amiga\n"), 0644))
	_, err = LoadFile(invalid)
	assert.Error(t, err)
}
