package camera

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeOutput はOutputの戻り値
type fakeOutput struct {
	out []byte
	err error
}

// fakeExecutor はテスト用のExecutor実装
type fakeExecutor struct {
	mu       sync.Mutex
	outputs  map[string]fakeOutput
	run      func(inv Invocation) (ExecResult, error)
	runCalls []Invocation
	streams  []*fakeProcess
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{outputs: make(map[string]fakeOutput)}
}

func (f *fakeExecutor) setOutput(program, out string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[program] = fakeOutput{out: []byte(out), err: err}
}

func (f *fakeExecutor) Output(_ context.Context, inv Invocation) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.outputs[inv.Program]
	return o.out, o.err
}

func (f *fakeExecutor) RunToCompletion(_ context.Context, inv Invocation, _ time.Duration) (ExecResult, error) {
	f.mu.Lock()
	f.runCalls = append(f.runCalls, inv)
	run := f.run
	f.mu.Unlock()

	if run == nil {
		return ExecResult{}, nil
	}
	return run(inv)
}

func (f *fakeExecutor) RunStreaming(_ Invocation) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := newFakeProcess()
	f.streams = append(f.streams, p)
	return p, nil
}

func (f *fakeExecutor) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeExecutor) stream(i int) *fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func (f *fakeExecutor) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runCalls)
}

// fakeProcess はパイプで標準出力を模擬するプロセス
type fakeProcess struct {
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	exited  chan struct{}
	once    sync.Once

	mu     sync.Mutex
	killed bool
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{stdoutR: r, stdoutW: w, exited: make(chan struct{})}
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdoutR }

func (p *fakeProcess) Stderr() io.Reader { return strings.NewReader("ffmpeg version test\n") }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.finish()
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.exited
	return nil
}

// emit はpumpが読み取るまでブロックする
func (p *fakeProcess) emit(b []byte) error {
	_, err := p.stdoutW.Write(b)
	return err
}

// exit はプロセスの自発的な終了を模擬する
func (p *fakeProcess) exit() {
	p.finish()
}

func (p *fakeProcess) finish() {
	p.once.Do(func() {
		_ = p.stdoutW.Close()
		close(p.exited)
	})
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
