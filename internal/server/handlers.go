package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shashin/internal/camera"
	"shashin/internal/device"
	"shashin/internal/events"
	"shashin/internal/media"
)

// handler はルートごとの処理を実装する
type handler struct {
	camera    CameraService
	devices   device.Store
	publisher events.Publisher
	media     *media.Library
	log       logrus.FieldLogger
}

// CaptureResponse は撮影・録画成功時のレスポンス
type CaptureResponse struct {
	Message string `json:"message"`
	camera.CaptureResult
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string          `json:"status"`
	Database  string          `json:"database"`
	Platform  camera.Platform `json:"platform"`
	Streams   int             `json:"streams"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessageResponse は処理結果のメッセージ
type MessageResponse struct {
	Message string         `json:"message"`
	Device  *device.Device `json:"device,omitempty"`
}

// root はサービス名を返す
func (h *handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, "device service")
}

// healthCheckTimeout はヘルスチェックでデータベースの応答を待つ上限
const healthCheckTimeout = 2 * time.Second

// health はヘルスチェックエンドポイントの実装
// デバイス台帳に到達できない場合は503を返す
func (h *handler) health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Database:  "up",
		Platform:  h.camera.Platform(),
		Streams:   len(h.camera.Streams()),
		Timestamp: time.Now(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()
	if err := h.devices.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("データベースに接続できません")
		resp.Status = "unhealthy"
		resp.Database = "down"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// createDevice はデバイスを登録し、登録メッセージをキューに送る
func (h *handler) createDevice(c *gin.Context) {
	var in device.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Title and description are required")
		return
	}

	d, err := h.devices.Create(c.Request.Context(), in)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "Device created successfully", Device: &d})

	// 送信の失敗は登録結果に影響させない
	ev := events.DeviceCreated{Title: in.Title, Description: in.Description}
	if err := h.publisher.PublishDeviceCreated(c.Request.Context(), ev); err != nil {
		h.log.WithError(err).WithField("device_id", d.ID).Warn("登録メッセージの送信に失敗しました")
	}
}

// listDevices は登録済みデバイスの一覧を返す
func (h *handler) listDevices(c *gin.Context) {
	devices, err := h.devices.List(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, devices)
}

// updateDevice はデバイスのタイトルと説明を更新する
func (h *handler) updateDevice(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}

	var in device.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Title and description are required")
		return
	}

	if err := h.devices.Update(c.Request.Context(), id, in); err != nil {
		h.abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Device updated successfully"})
}

// deleteDevice はデバイスを削除する
func (h *handler) deleteDevice(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}

	if err := h.devices.Delete(c.Request.Context(), id); err != nil {
		h.abortWithStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) abortWithStoreError(c *gin.Context, err error) {
	if errors.Is(err, device.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "device_not_found", "指定されたデバイスが見つかりません")
		return
	}
	abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
}

// deviceID はパスパラメータのデバイスIDを取得する
func deviceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "デバイスIDが不正です")
		return 0, false
	}
	return id, true
}

// capture は写真または動画を撮影するハンドラーを返す
// ?timeout=5s でタイムアウトを指定できる
func (h *handler) capture(kind camera.CaptureKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var timeout time.Duration
		if raw := c.Query("timeout"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				abortWithError(c, http.StatusBadRequest, "invalid_request", "timeoutが不正です")
				return
			}
			timeout = d
		}

		res, err := h.camera.Capture(c.Request.Context(), kind, timeout)
		if err != nil {
			h.log.WithError(err).WithField("kind", kind).Error("リクエストエラー")
			abortWithCaptureError(c, err)
			return
		}

		label := "Photo"
		if kind == camera.KindVideo {
			label = "Video"
		}
		c.JSON(http.StatusOK, CaptureResponse{
			Message:       fmt.Sprintf("%s saved to: %s", label, res.Path),
			CaptureResult: *res,
		})
	}
}

// stream はMPEG-TSストリームを配信する
// クライアントが切断するとストリームとカメラプロセスを停止する
func (h *handler) stream(c *gin.Context) {
	handle, err := h.camera.StartStream(c.Request.Context())
	if err != nil {
		abortWithCaptureError(c, err)
		return
	}
	defer handle.Stop()

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "video/mp2t")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Stream-ID", handle.ID)
	c.Status(http.StatusOK)

	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	flusher.Flush()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()
	chunks := handle.Chunks()

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			return

		case chunk, ok := <-chunks:
			if !ok {
				// プロセスが終了した
				if err := handle.Err(); err != nil {
					h.log.WithError(err).WithField("stream_id", handle.ID).Warn("ストリームが異常終了しました")
				}
				return
			}

			if _, err := writer.Write(chunk); err != nil {
				return
			}

			// バッファをフラッシュ
			flusher.Flush()
		}
	}
}

// listStreams はアクティブなストリーム一覧を返す
func (h *handler) listStreams(c *gin.Context) {
	c.JSON(http.StatusOK, h.camera.Streams())
}

// stopStream は指定IDのストリームを停止する
func (h *handler) stopStream(c *gin.Context) {
	if err := h.camera.StopStream(c.Param("id")); err != nil {
		if errors.Is(err, camera.ErrStreamNotFound) {
			abortWithError(c, http.StatusNotFound, "stream_not_found", "指定されたストリームが見つかりません")
			return
		}
		abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

// listMedia はキャプチャ済みファイルの一覧を返す
func (h *handler) listMedia(c *gin.Context) {
	items, err := h.media.List()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, items)
}

// thumbnail は静止画のサムネイルを返す
func (h *handler) thumbnail(c *gin.Context) {
	width := 0
	if raw := c.Query("width"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_request", "widthが不正です")
			return
		}
		width = w
	}

	data, err := h.media.Thumbnail(c.Param("name"), width)
	switch {
	case err == nil:
		c.Header("Cache-Control", "max-age=300")
		c.Data(http.StatusOK, "image/jpeg", data)
	case errors.Is(err, media.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "media_not_found", err.Error())
	case errors.Is(err, media.ErrInvalidName), errors.Is(err, media.ErrInvalidWidth), errors.Is(err, media.ErrNotImage):
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
