// Package main はShashinサーバーコマンドの実装です
package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"

	"shashin/internal/config"
	"shashin/internal/logging"
	"shashin/internal/server"
)

// options はコマンドラインオプション
type options struct {
	Config   string `short:"c" long:"config" description:"設定ファイル (YAML)"`
	Host     string `long:"host" description:"サーバーのホスト (デフォルト: 0.0.0.0)"`
	Port     int    `short:"p" long:"port" description:"サーバーのポート (デフォルト: 8080)"`
	LogLevel string `short:"l" long:"log-level" description:"ログレベル" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error"`
}

func main() {
	opts := &options{}
	if _, err := flags.Parse(opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// 設定を読み込む
	var (
		cfg *config.Config
		err error
	)
	if opts.Config != "" {
		cfg, err = config.LoadFile(opts.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が不正です: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}
	if cfg.Log.Level != "debug" && cfg.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	// サーバーを起動
	logger.Infof("Shashin サーバーを起動します: %s", cfg.ServerAddress())
	if err := server.Run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Fatal("サーバーの起動に失敗しました")
	}
}
