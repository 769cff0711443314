// Package camera ローカルに接続されたカメラでの撮影を統括する
//
// # 責務
// - OSごとのカメラデバイスの解決（毎回列挙し、キャッシュしない）
// - キャプチャツール（ffmpeg / imagesnap）の起動内容をargv形式で構築
// - プロセスの実行、タイムアウト時の強制終了、終了コードの報告
// - 出力ファイルの検証と失敗時の部分ファイル削除
// - MPEG-TSライブストリームの中継とデバイス単位の排他制御
//
// # 仕様
// - Manager: 撮影リクエストの入口（Capture / StartStream）
// - CameraDeviceDriver: MacDriver / WindowsDriver / LinuxDriver
// - Executor: os/exec のラッパー。テストではフェイクに差し替える
// - OutputValidator: 成果物の存在とサイズを確認
// - StreamRelay: ストリームの状態遷移 idle → starting → streaming → stopping → idle
// - DeviceLocks: 同一デバイスへの同時実行は常に1つ
// - 失敗は全てCaptureErrorとして返し、内部でリトライしない
//
// # 前提要件
//   - Linux: ffmpeg, v4l-utils（v4l2-ctl が無い場合は /dev/video* を走査）
//     Ubuntu/Debian: sudo apt install ffmpeg v4l-utils
//   - macOS: imagesnap, ffmpeg
//     brew install imagesnap ffmpeg
//   - Windows: ffmpeg.exe（DirectShowデバイス名は設定で指定）
package camera
