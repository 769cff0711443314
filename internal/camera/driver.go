package camera

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CameraDeviceDriver はプラットフォームごとのデバイス解決とコマンド構築を担う
type CameraDeviceDriver interface {
	// Platform はドライバーが対象とするプラットフォームを返す
	Platform() Platform

	// Resolve は現在接続されているカメラを解決する（キャッシュしない）
	Resolve(ctx context.Context) (DeviceDescriptor, error)

	// BuildCommand はキャプチャツールの起動内容を構築する
	BuildCommand(dev DeviceDescriptor, req CaptureRequest) (Invocation, error)
}

// ToolPaths は外部ツールの実行ファイルパス
type ToolPaths struct {
	FFmpeg    string
	Imagesnap string
	V4L2Ctl   string
}

// DefaultToolPaths はPATH上のツール名を返す
func DefaultToolPaths(p Platform) ToolPaths {
	tools := ToolPaths{
		FFmpeg:    "ffmpeg",
		Imagesnap: "imagesnap",
		V4L2Ctl:   "v4l2-ctl",
	}
	if p == PlatformWindows {
		tools.FFmpeg = "ffmpeg.exe"
	}
	return tools
}

// DriverOptions はドライバーの生成設定
type DriverOptions struct {
	Tools             ToolPaths
	WindowsDeviceName string // Windowsでは列挙せずこの名前を使う
	VideoDevDir       string // v4l2-ctlが無い場合に走査するディレクトリ
}

type tool int

const (
	toolFFmpeg tool = iota
	toolImagesnap
)

func (t ToolPaths) path(tl tool) string {
	if tl == toolImagesnap {
		return t.Imagesnap
	}
	return t.FFmpeg
}

// toolSpec はキャプチャ種別ごとのツールと引数テンプレート
type toolSpec struct {
	tool tool
	args func(dev DeviceDescriptor, req CaptureRequest) []string
}

// ffmpegの入力指定（-f <format> -i <device>）
type inputFormat struct {
	format string
	device func(id string) string
}

var inputFormats = map[Platform]inputFormat{
	PlatformMacOS:   {format: "avfoundation", device: func(id string) string { return id }},
	PlatformWindows: {format: "dshow", device: func(id string) string { return "video=" + id }},
	PlatformLinux:   {format: "video4linux2", device: func(id string) string { return id }},
}

func ffmpegInput(p Platform, id string) []string {
	in := inputFormats[p]
	args := []string{"-hide_banner", "-loglevel", "error", "-f", in.format}
	if p == PlatformMacOS {
		// avfoundationはフレームレート指定が無いと失敗するカメラがある
		args = append(args, "-framerate", "30")
	}
	return append(args, "-i", in.device(id))
}

func ffmpegPhoto(p Platform) toolSpec {
	return toolSpec{tool: toolFFmpeg, args: func(dev DeviceDescriptor, req CaptureRequest) []string {
		args := ffmpegInput(p, dev.Identifier)
		return append(args, "-frames:v", "1", "-y", outputArg(req.TargetPath))
	}}
}

func ffmpegVideo(p Platform) toolSpec {
	return toolSpec{tool: toolFFmpeg, args: func(dev DeviceDescriptor, req CaptureRequest) []string {
		args := ffmpegInput(p, dev.Identifier)
		return append(args,
			"-t", seconds(req.FixedDuration),
			"-c:v", "libx264",
			"-preset", "fast",
			"-pix_fmt", "yuv420p",
			"-y", outputArg(req.TargetPath),
		)
	}}
}

func ffmpegStream(p Platform) toolSpec {
	return toolSpec{tool: toolFFmpeg, args: func(dev DeviceDescriptor, _ CaptureRequest) []string {
		args := ffmpegInput(p, dev.Identifier)
		return append(args,
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-tune", "zerolatency",
			"-pix_fmt", "yuv420p",
			"-f", "mpegts",
			"pipe:1",
		)
	}}
}

// captureTable はプラットフォームとキャプチャ種別からツールを引く
var captureTable = map[Platform]map[CaptureKind]toolSpec{
	PlatformMacOS: {
		KindPhoto: {tool: toolImagesnap, args: func(dev DeviceDescriptor, req CaptureRequest) []string {
			return []string{"-d", dev.Identifier, "-w", "1", outputArg(req.TargetPath)}
		}},
		KindVideo:  ffmpegVideo(PlatformMacOS),
		KindStream: ffmpegStream(PlatformMacOS),
	},
	PlatformWindows: {
		KindPhoto:  ffmpegPhoto(PlatformWindows),
		KindVideo:  ffmpegVideo(PlatformWindows),
		KindStream: ffmpegStream(PlatformWindows),
	},
	PlatformLinux: {
		KindPhoto:  ffmpegPhoto(PlatformLinux),
		KindVideo:  ffmpegVideo(PlatformLinux),
		KindStream: ffmpegStream(PlatformLinux),
	},
}

// BuildCommand はテーブルからキャプチャツールのargvを構築する
func BuildCommand(tools ToolPaths, dev DeviceDescriptor, req CaptureRequest) (Invocation, error) {
	kinds, ok := captureTable[dev.Platform]
	if !ok {
		return Invocation{}, newError(KindUnsupportedPlatform, "サポートされていないプラットフォーム: %q", dev.Platform)
	}
	if dev.Identifier == "" {
		return Invocation{}, newError(KindCameraNotFound, "デバイス識別子が空です")
	}
	if err := req.Validate(); err != nil {
		return Invocation{}, err
	}

	entry, ok := kinds[req.Kind]
	if !ok {
		return Invocation{}, fmt.Errorf("サポートされていないキャプチャ種別: %s", req.Kind)
	}

	return Invocation{
		Program: tools.path(entry.tool),
		Args:    entry.args(dev, req),
	}, nil
}

// outputArg は出力パスがオプションとして解釈されないようにする
func outputArg(path string) string {
	if strings.HasPrefix(path, "-") {
		return "." + string(filepath.Separator) + path
	}
	return path
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// baseDriver はコマンド構築を共通化する
type baseDriver struct {
	platform Platform
	tools    ToolPaths
}

func (b baseDriver) Platform() Platform { return b.platform }

func (b baseDriver) BuildCommand(dev DeviceDescriptor, req CaptureRequest) (Invocation, error) {
	if dev.Platform != b.platform {
		return Invocation{}, fmt.Errorf("デバイス %s は %s 用ではありません", dev.Identifier, b.platform)
	}
	return BuildCommand(b.tools, dev, req)
}

// MacDriver はimagesnapでカメラを列挙する
type MacDriver struct {
	baseDriver
	exec Executor
}

// WindowsDriver は設定されたDirectShowデバイス名を使う
// dshowの列挙結果は安定しないため静的な名前に頼る
type WindowsDriver struct {
	baseDriver
	deviceName string
}

// LinuxDriver はv4l2-ctlでカメラを列挙する
type LinuxDriver struct {
	baseDriver
	exec   Executor
	devDir string
}

// NewDriver はプラットフォームに応じたドライバーを返す
func NewDriver(p Platform, opts DriverOptions, exec Executor) (CameraDeviceDriver, error) {
	base := baseDriver{platform: p, tools: opts.Tools}
	switch p {
	case PlatformMacOS:
		return &MacDriver{baseDriver: base, exec: exec}, nil
	case PlatformWindows:
		return &WindowsDriver{baseDriver: base, deviceName: opts.WindowsDeviceName}, nil
	case PlatformLinux:
		devDir := opts.VideoDevDir
		if devDir == "" {
			devDir = "/dev"
		}
		return &LinuxDriver{baseDriver: base, exec: exec, devDir: devDir}, nil
	default:
		return nil, newError(KindUnsupportedPlatform, "サポートされていないプラットフォーム: %q", p)
	}
}

// Resolve はimagesnap -l の先頭のデバイスを返す
func (d *MacDriver) Resolve(ctx context.Context) (DeviceDescriptor, error) {
	out, err := d.exec.Output(ctx, Invocation{Program: d.tools.Imagesnap, Args: []string{"-l"}})
	if err != nil {
		return DeviceDescriptor{}, &CaptureError{Kind: KindCameraNotFound, Err: fmt.Errorf("imagesnap -l の実行に失敗: %w", err)}
	}
	return firstDevice(d.platform, parseImagesnapDevices(string(out)))
}

// Resolve は設定されたデバイス名を返す
func (d *WindowsDriver) Resolve(_ context.Context) (DeviceDescriptor, error) {
	name := strings.TrimSpace(d.deviceName)
	return firstDevice(d.platform, []string{name})
}

// Resolve はv4l2-ctl --list-devices の先頭のキャプチャデバイスを返す
// v4l2-ctlがインストールされていない場合は /dev/video* を走査する
func (d *LinuxDriver) Resolve(ctx context.Context) (DeviceDescriptor, error) {
	out, err := d.exec.Output(ctx, Invocation{Program: d.tools.V4L2Ctl, Args: []string{"--list-devices"}})
	if err != nil {
		if !isNotInstalled(err) {
			return DeviceDescriptor{}, &CaptureError{Kind: KindCameraNotFound, Err: fmt.Errorf("v4l2-ctl --list-devices の実行に失敗: %w", err)}
		}
		devices, scanErr := scanVideoDevices(d.devDir)
		if scanErr != nil {
			return DeviceDescriptor{}, &CaptureError{Kind: KindCameraNotFound, Err: scanErr}
		}
		return firstDevice(d.platform, devices)
	}
	return firstDevice(d.platform, parseV4L2Devices(string(out)))
}

func firstDevice(p Platform, ids []string) (DeviceDescriptor, error) {
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			return DeviceDescriptor{Platform: p, Identifier: id}, nil
		}
	}
	return DeviceDescriptor{}, newError(KindCameraNotFound, "%s でカメラが見つかりません", p)
}
