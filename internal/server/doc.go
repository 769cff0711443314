// Package server は、HTTPサーバーとルーティングを管理します。
//
// このパッケージは、Ginを使ったHTTPサーバーの起動、
// デバイス台帳のCRUD、撮影・録画・ライブストリームの配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - デバイス台帳（/create, /all, /device/:id）のリクエスト処理
//   - 撮影（/photo）、録画（/video）の実行と結果の返却
//   - MPEG-TSストリーム（/stream）の逐次配信とクライアント切断時の停止
//   - キャプチャ済みファイルの一覧とサムネイル配信
//
// 仕様:
//   - キャプチャエラーは種別ごとのHTTPステータスに変換する
//   - シャットダウン時はストリームを先に停止してから接続を閉じる
package server
