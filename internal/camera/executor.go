package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Executor は外部プロセスの実行を抽象化する
// テストではフェイク実装に差し替える
type Executor interface {
	// Output はデバイス一覧取得などの短いコマンドを実行し標準出力を返す
	Output(ctx context.Context, inv Invocation) ([]byte, error)

	// RunToCompletion はプロセスの終了まで待機する
	// 非ゼロ終了はエラーではなくExecResult.ExitCodeで返す
	RunToCompletion(ctx context.Context, inv Invocation, timeout time.Duration) (ExecResult, error)

	// RunStreaming はプロセスを起動してすぐに返る
	// 返されたProcessの所有者がKillとWaitの責任を持つ
	RunStreaming(inv Invocation) (Process, error)
}

// ExecResult は完了したプロセスの結果
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Process は実行中のストリーミングプロセス
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Kill() error
	// Wait はStdoutとStderrを読み切った後に呼ぶ
	Wait() error
}

// ProcessExecutor はos/execを使ったExecutorの実装
type ProcessExecutor struct {
	// WaitDelay はプロセス終了後にパイプのクローズを待つ上限
	WaitDelay time.Duration
}

// NewProcessExecutor は新しいProcessExecutorを作成する
func NewProcessExecutor() *ProcessExecutor {
	return &ProcessExecutor{WaitDelay: 2 * time.Second}
}

// Ensure that ProcessExecutor implements interface Executor.
var _ Executor = (*ProcessExecutor)(nil)

// command は引数をシェルを介さずに渡すコマンドを作る
// キャンセル時は子プロセスが起動した孫プロセスまでまとめて終了させる
func (e *ProcessExecutor) command(ctx context.Context, inv Invocation) *exec.Cmd {
	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.WaitDelay = e.WaitDelay
	killProcessGroup(cmd)
	return cmd
}

// Output はコマンドを実行して標準出力を返す
func (e *ProcessExecutor) Output(ctx context.Context, inv Invocation) ([]byte, error) {
	return e.command(ctx, inv).Output()
}

// RunToCompletion はプロセスを実行し、終了またはタイムアウトまで待機する
// タイムアウト時はプロセスを強制終了してKindTimeoutを返す
func (e *ProcessExecutor) RunToCompletion(ctx context.Context, inv Invocation, timeout time.Duration) (ExecResult, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := e.command(runCtx, inv)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if err == nil {
		return result, nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return result, newError(KindTimeout, "%s が %s 以内に終了しませんでした", inv.Program, timeout)
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("キャプチャが中断されました: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	// 起動自体に失敗した（実行ファイルが見つからない等）
	return result, &CaptureError{
		Kind:     KindExecutionFailed,
		ExitCode: -1,
		Err:      fmt.Errorf("%s の起動に失敗: %w", inv.Program, err),
	}
}

// RunStreaming はプロセスを起動し、標準出力と標準エラーをパイプで返す
func (e *ProcessExecutor) RunStreaming(inv Invocation) (Process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := e.command(ctx, inv)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &CaptureError{
			Kind:     KindExecutionFailed,
			ExitCode: -1,
			Err:      fmt.Errorf("%s の起動に失敗: %w", inv.Program, err),
		}
	}

	return &execProcess{
		cmd:    cmd,
		cancel: cancel,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// execProcess はexec.Cmdをラップしたプロセスハンドル
type execProcess struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.Reader
	stderr io.Reader

	waitOnce sync.Once
	waitErr  error
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Stderr() io.Reader { return p.stderr }

// Kill はプロセスを強制終了する
func (p *execProcess) Kill() error {
	p.cancel()
	return nil
}

// Wait はプロセスの終了を待つ（複数回呼んでも安全）
func (p *execProcess) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.cancel()
	})
	return p.waitErr
}
