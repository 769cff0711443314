package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shashin/internal/camera"
	"shashin/internal/config"
	"shashin/internal/device"
	"shashin/internal/events"
	"shashin/internal/logging"
	"shashin/internal/media"
)

// CameraService はHTTP層から使うオーケストレーターの操作
type CameraService interface {
	Platform() camera.Platform
	Capture(ctx context.Context, kind camera.CaptureKind, timeout time.Duration) (*camera.CaptureResult, error)
	StartStream(ctx context.Context) (*camera.StreamHandle, error)
	StopStream(id string) error
	Streams() []camera.StreamInfo
	Close()
}

var _ CameraService = (*camera.Manager)(nil)

// Deps はサーバーが依存するコンポーネント
type Deps struct {
	Camera    CameraService
	Devices   device.Store
	Publisher events.Publisher
	Media     *media.Library
	Log       logrus.FieldLogger
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	deps       Deps
	engine     *gin.Engine
	httpServer *http.Server
	log        logrus.FieldLogger
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	log := logging.Component(deps.Log, "server")

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		config: cfg,
		deps:   deps,
		engine: engine,
		log:    log,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	s.setupRoutes()
	return s
}

// Handler はルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	h := &handler{
		camera:    s.deps.Camera,
		devices:   s.deps.Devices,
		publisher: s.deps.Publisher,
		media:     s.deps.Media,
		log:       s.log,
	}

	s.engine.GET("/", h.root)
	s.engine.GET("/health", h.health)

	// デバイス台帳
	s.engine.POST("/create", h.createDevice)
	s.engine.GET("/all", h.listDevices)
	s.engine.PATCH("/device/:id", h.updateDevice)
	s.engine.DELETE("/device/:id", h.deleteDevice)

	// キャプチャ
	s.engine.GET("/photo", h.capture(camera.KindPhoto))
	s.engine.GET("/video", h.capture(camera.KindVideo))
	s.engine.GET("/stream", h.stream)
	s.engine.GET("/streams", h.listStreams)
	s.engine.DELETE("/stream/:id", h.stopStream)

	// キャプチャ済みファイル
	s.engine.GET("/media", h.listMedia)
	s.engine.GET("/media/:name/thumbnail", h.thumbnail)
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.log.WithField("addr", s.config.ServerAddress()).Info("HTTPサーバーを起動しています")
		if s.config.Server.AppURL != "" {
			s.log.Infof("公開URL: %s", s.config.Server.AppURL)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.log.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.log.Infof("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		s.deps.Camera.Close()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// ストリーム配信中のハンドラーが終わるよう、先にストリームを停止する
func (s *Server) Shutdown() error {
	s.log.Info("サーバーをシャットダウンしています...")

	s.deps.Camera.Close()

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.log.Info("サーバーが正常にシャットダウンされました")
	return nil
}

// requestLogger はリクエストごとにアクセスログを出力する
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"client":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("リクエスト処理に失敗しました")
			return
		}
		entry.Debug("リクエストを処理しました")
	}
}
