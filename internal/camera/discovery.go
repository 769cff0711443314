package camera

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	videoDeviceRe = regexp.MustCompile(`^/dev/video\d+$`)
	videoNumberRe = regexp.MustCompile(`video(\d+)$`)
)

// parseV4L2Devices は v4l2-ctl --list-devices の出力からビデオデバイスを抽出する
//
// 出力例:
//
//	HD Pro Webcam C920 (usb-0000:00:14.0-1):
//		/dev/video0
//		/dev/video1
//		/dev/media0
func parseV4L2Devices(s string) []string {
	var devices []string
	var card string
	for _, line := range strings.Split(s, "\n") {
		if !strings.HasPrefix(line, "\t") {
			card = strings.TrimSpace(line)
			continue
		}
		// Raspberry Piのコーデック等はカメラではない
		if card == "" || strings.HasPrefix(card, "bcm2835-") {
			continue
		}

		line = strings.TrimSpace(line)
		if videoDeviceRe.MatchString(line) {
			devices = append(devices, line)
		}
	}
	return devices
}

// parseImagesnapDevices は imagesnap -l の出力からデバイス名を抽出する
// 新旧両方の出力形式に対応する
func parseImagesnapDevices(s string) []string {
	var devices []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "=> "):
			// 新形式: "=> FaceTime HD Camera (Built-in)"
			devices = append(devices, strings.TrimSpace(line[len("=> "):]))
		case strings.HasPrefix(line, "<"):
			// 旧形式: "<AVCaptureDALDevice: 0x7fa2c7852fd0 [FaceTime HD Camera (Built-in)][0x8020000005ac8514]>"
			t := strings.Split(line, "[")
			if len(t) < 2 {
				continue
			}
			devices = append(devices, strings.Split(t[1], "]")[0])
		}
	}
	return devices
}

// scanVideoDevices は dir/video* をデバイス番号順に返す
func scanVideoDevices(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "video*"))
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	devices := make([]string, 0, len(matches))
	for _, match := range matches {
		if !videoNumberRe.MatchString(match) {
			continue
		}
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		devices = append(devices, match)
	}

	sort.Slice(devices, func(i, j int) bool {
		return extractDeviceNumber(devices[i]) < extractDeviceNumber(devices[j])
	})

	return devices, nil
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := videoNumberRe.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

// isNotInstalled は実行ファイルが見つからないエラーか判定する
func isNotInstalled(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}
