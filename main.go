package main

import (
	"context"
	"log"

	"shashin/internal/config"
	"shashin/internal/logging"
	"shashin/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}

	// サーバーを起動
	if err := server.Run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Fatal("サーバーの起動に失敗しました")
	}
}
