package camera

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireTool(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s が見つかりません", name)
	}
	return path
}

// TestProcessExecutor_ExitCode は終了コードとstderrの取得をテストする
func TestProcessExecutor_ExitCode(t *testing.T) {
	sh := requireTool(t, "sh")
	e := NewProcessExecutor()

	res, err := e.RunToCompletion(context.Background(),
		Invocation{Program: sh, Args: []string{"-c", "echo broken >&2; exit 3"}}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "broken\n", string(res.Stderr))
}

// TestProcessExecutor_Timeout はタイムアウトでプロセスを終了させることをテストする
func TestProcessExecutor_Timeout(t *testing.T) {
	sleep := requireTool(t, "sleep")
	e := NewProcessExecutor()

	start := time.Now()
	_, err := e.RunToCompletion(context.Background(), Invocation{Program: sleep, Args: []string{"5"}}, 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), 4*time.Second)
}

// TestProcessExecutor_MissingProgram は存在しないツールの実行失敗をテストする
func TestProcessExecutor_MissingProgram(t *testing.T) {
	e := NewProcessExecutor()

	_, err := e.RunToCompletion(context.Background(),
		Invocation{Program: filepath.Join(t.TempDir(), "no-such-tool")}, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecutionFailed))

	_, err = e.RunStreaming(Invocation{Program: filepath.Join(t.TempDir(), "no-such-tool")})
	assert.True(t, errors.Is(err, ErrExecutionFailed))
}

// TestProcessExecutor_ArgumentsAreNotInterpreted は引数がシェルとして解釈されないことをテストする
func TestProcessExecutor_ArgumentsAreNotInterpreted(t *testing.T) {
	printf := requireTool(t, "printf")
	e := NewProcessExecutor()

	canary := filepath.Join(t.TempDir(), "canary")
	hostile := `foo"; touch ` + canary + ` #`

	res, err := e.RunToCompletion(context.Background(),
		Invocation{Program: printf, Args: []string{"%s", hostile}}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, hostile, string(res.Stdout))

	_, statErr := os.Stat(canary)
	assert.True(t, os.IsNotExist(statErr), "引数がシェルとして解釈されました")
}

// TestProcessExecutor_Output は標準出力の取得をテストする
func TestProcessExecutor_Output(t *testing.T) {
	echo := requireTool(t, "echo")
	e := NewProcessExecutor()

	out, err := e.Output(context.Background(), Invocation{Program: echo, Args: []string{"/dev/video0"}})
	require.NoError(t, err)
	assert.Equal(t, "/dev/video0\n", string(out))
}

// TestStreamRelay_RealProcess は実プロセスの出力の中継と停止をテストする
func TestStreamRelay_RealProcess(t *testing.T) {
	sh := requireTool(t, "sh")
	defer leaktest.CheckTimeout(t, 3*time.Second)()

	locks := NewDeviceLocks()
	relay := NewStreamRelay(NewProcessExecutor(), locks, testLogger(), 0)

	dev := DeviceDescriptor{Platform: PlatformLinux, Identifier: "/dev/video0"}
	h, err := relay.Start(context.Background(), dev, Invocation{
		Program: sh,
		Args:    []string{"-c", "while true; do printf ts; sleep 0.01; done"},
	})
	require.NoError(t, err)

	select {
	case chunk := <-h.Chunks():
		assert.NotEmpty(t, chunk)
	case <-time.After(2 * time.Second):
		t.Fatal("チャンクを受信できませんでした")
	}
	assert.True(t, locks.Held(dev.Identifier))

	h.Stop()
	assert.False(t, locks.Held(dev.Identifier))
	assert.Equal(t, StreamIdle, h.State())

	// Stop後はチャンネルがクローズされる
	for range h.Chunks() {
	}
}
