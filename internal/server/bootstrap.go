package server

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"shashin/internal/camera"
	"shashin/internal/config"
	"shashin/internal/device"
	"shashin/internal/events"
	"shashin/internal/logging"
	"shashin/internal/media"
)

// Bootstrap は設定から依存コンポーネントを組み立ててServerを作成する
// データベースに接続できない場合は起動しない
// RabbitMQに接続できない場合は送信を無効にして起動する
func Bootstrap(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Server, func(), error) {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	var publisher events.Publisher
	amqpPublisher, err := events.Dial(cfg.Queue.URL, cfg.Queue.Name, cfg.Queue.DialTimeout, logging.Component(logger, "events"))
	if err != nil {
		logger.WithError(err).Warn("RabbitMQに接続できません。登録メッセージの送信を無効にします")
		publisher = events.NoopPublisher{}
	} else {
		publisher = amqpPublisher
	}

	opts := cfg.CameraOptions()
	manager := camera.NewManager(opts, camera.NewProcessExecutor(), logging.Component(logger, "camera"))
	logger.WithFields(logrus.Fields{
		"platform": manager.Platform(),
		"save_dir": manager.SaveDir(),
	}).Info("カメラを初期化しました")

	library := media.NewLibrary(manager.SaveDir(), media.Config{
		DefaultWidth: cfg.Media.ThumbnailWidth,
		MaxWidth:     cfg.Media.MaxThumbnailWidth,
		CacheTTL:     cfg.Media.CacheTTL,
	}, logging.Component(logger, "media"))

	srv := New(cfg, Deps{
		Camera:    manager,
		Devices:   store,
		Publisher: publisher,
		Media:     library,
		Log:       logger,
	})

	cleanup := func() {
		if err := publisher.Close(); err != nil {
			logger.WithError(err).Warn("RabbitMQ接続のクローズに失敗")
		}
		if err := closeStore(); err != nil {
			logger.WithError(err).Warn("データベース接続のクローズに失敗")
		}
	}
	return srv, cleanup, nil
}

// openStore は database.driver に応じてデバイス台帳を開く
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (device.Store, func() error, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("デバイス台帳をメモリ上に作成します。再起動すると内容は失われます")
		return device.NewMemoryStore(), func() error { return nil }, nil
	}

	store, err := device.Connect(ctx, cfg.Database.URL, device.ConnectOptions{
		Attempts: cfg.Database.ConnectRetry,
		Interval: cfg.Database.RetryInterval,
	}, logging.Component(logger, "device"))
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

// Run はサーバーを起動し、終了まで待機する
func Run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	srv, cleanup, err := Bootstrap(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}
	defer cleanup()

	return srv.Start(ctx)
}
