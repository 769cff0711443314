package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shashin/internal/camera"
)

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var statusByKind = map[camera.ErrorKind]int{
	camera.KindUnsupportedPlatform: http.StatusNotImplemented,
	camera.KindCameraNotFound:      http.StatusNotFound,
	camera.KindDeviceBusy:          http.StatusConflict,
	camera.KindTimeout:             http.StatusGatewayTimeout,
	camera.KindExecutionFailed:     http.StatusInternalServerError,
	camera.KindOutputMissing:       http.StatusInternalServerError,
}

var messageByKind = map[camera.ErrorKind]string{
	camera.KindUnsupportedPlatform: "このOSには対応していません",
	camera.KindCameraNotFound:      "カメラが見つかりません",
	camera.KindDeviceBusy:          "カメラは使用中です",
	camera.KindTimeout:             "キャプチャがタイムアウトしました",
	camera.KindExecutionFailed:     "キャプチャツールの実行に失敗しました",
	camera.KindOutputMissing:       "キャプチャ結果のファイルがありません",
}

// abortWithError はエラーレスポンスを返す
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// abortWithCaptureError はキャプチャエラーを種別ごとのステータスに変換する
func abortWithCaptureError(c *gin.Context, err error) {
	var cerr *camera.CaptureError
	if !errors.As(err, &cerr) {
		abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	status, ok := statusByKind[cerr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	resp := ErrorResponse{
		Error:     string(cerr.Kind),
		Message:   messageByKind[cerr.Kind],
		Timestamp: time.Now(),
	}
	if cerr.Stderr != "" {
		resp.Details = stringPtr(cerr.Stderr)
	} else if cerr.Err != nil {
		resp.Details = stringPtr(cerr.Err.Error())
	}
	c.AbortWithStatusJSON(status, resp)
}

// stringPtr は文字列のポインタを返すヘルパー関数
func stringPtr(s string) *string {
	return &s
}
