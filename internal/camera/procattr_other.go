//go:build !unix

package camera

import "os/exec"

// killProcessGroup はプロセスグループの無い環境では何もしない
// キャンセル時はexec.CommandContextの既定どおり直接の子プロセスだけを終了させる
func killProcessGroup(*exec.Cmd) {}
