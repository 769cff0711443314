package camera

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StreamState はストリームの状態
type StreamState string

const (
	StreamIdle      StreamState = "idle"
	StreamStarting  StreamState = "starting"
	StreamStreaming StreamState = "streaming"
	StreamStopping  StreamState = "stopping"
)

// ErrStreamNotFound は指定IDのストリームが存在しない
var ErrStreamNotFound = errors.New("camera: stream not found")

const defaultChunkSize = 32 * 1024

// StreamInfo はアクティブなストリームの概要
type StreamInfo struct {
	ID        string           `json:"id"`
	Device    DeviceDescriptor `json:"device"`
	State     StreamState      `json:"state"`
	StartedAt time.Time        `json:"started_at"`
}

// StreamHandle はライブストリームの所有権を表す
// Chunksは一度きりで再開できない。Stopは冪等
type StreamHandle struct {
	ID        string
	Device    DeviceDescriptor
	StartedAt time.Time

	proc      Process
	release   func()
	log       logrus.FieldLogger
	chunkSize int

	chunks   chan []byte
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.RWMutex
	state StreamState
	err   error
}

// Chunks はプロセスの標準出力を出力順に返す
// ストリーム終了時にクローズされる
func (h *StreamHandle) Chunks() <-chan []byte {
	return h.chunks
}

// Done はプロセスが終了しロックが解放された後にクローズされる
func (h *StreamHandle) Done() <-chan struct{} {
	return h.done
}

// State は現在の状態を返す
func (h *StreamHandle) State() StreamState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Err はプロセスが自発的に終了した場合の終了エラーを返す
func (h *StreamHandle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Info はストリームの概要を返す
func (h *StreamHandle) Info() StreamInfo {
	return StreamInfo{
		ID:        h.ID,
		Device:    h.Device,
		State:     h.State(),
		StartedAt: h.StartedAt,
	}
}

// Stop はプロセスを終了させ、デバイスロックが解放されるまで待つ
func (h *StreamHandle) Stop() {
	h.stopOnce.Do(func() {
		h.setState(StreamStopping)
		close(h.stopCh)
		if err := h.proc.Kill(); err != nil {
			h.log.WithError(err).Warn("ストリームプロセスの停止に失敗")
		}
	})
	<-h.done
}

func (h *StreamHandle) setState(s StreamState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

func (h *StreamHandle) stopRequested() bool {
	select {
	case <-h.stopCh:
		return true
	default:
		return false
	}
}

// run はプロセス終了までチャンクを転送し、後始末を行う
func (h *StreamHandle) run(onExit func()) {
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		h.logStderr()
	}()

	h.pump()

	// 自発的な終了でも転送エラーでも必ずプロセスを止める
	h.setState(StreamStopping)
	_ = h.proc.Kill()
	<-stderrDone
	waitErr := h.proc.Wait()

	h.release()
	onExit()

	h.mu.Lock()
	if !h.stopRequested() {
		h.err = waitErr
	}
	h.state = StreamIdle
	h.mu.Unlock()

	h.log.WithField("stream_id", h.ID).Info("ストリームを終了しました")

	close(h.chunks)
	close(h.done)
}

// pump は標準出力を読み取り、順序を保ったままチャンネルへ送る
func (h *StreamHandle) pump() {
	stdout := h.proc.Stdout()
	buf := make([]byte, h.chunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case h.chunks <- chunk:
			case <-h.stopCh:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !h.stopRequested() {
				h.log.WithError(err).Warn("ストリームの読み取りエラー")
			}
			return
		}
	}
}

// logStderr はキャプチャツールの診断出力をログに流す
func (h *StreamHandle) logStderr() {
	stderr := h.proc.Stderr()
	if stderr == nil {
		return
	}
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		h.log.WithField("stream_id", h.ID).Debug(scanner.Text())
	}
	// 長すぎる行で止まった場合もパイプが詰まらないよう読み捨てる
	_, _ = io.Copy(io.Discard, stderr)
}

// StreamRelay はストリーミングプロセスとデバイスロックを管理する
type StreamRelay struct {
	exec      Executor
	locks     *DeviceLocks
	log       logrus.FieldLogger
	chunkSize int

	mu     sync.Mutex
	active map[string]*StreamHandle
}

// NewStreamRelay は新しいStreamRelayを作成する
func NewStreamRelay(exec Executor, locks *DeviceLocks, log logrus.FieldLogger, chunkSize int) *StreamRelay {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &StreamRelay{
		exec:      exec,
		locks:     locks,
		log:       log,
		chunkSize: chunkSize,
		active:    make(map[string]*StreamHandle),
	}
}

// Start はデバイスロックを取得してストリーミングプロセスを起動する
// ロックが保持されている場合はプロセス層に触れずにKindDeviceBusyを返す
// ctxが終了した場合（コンシューマーの切断）はStopと同じ扱いになる
func (r *StreamRelay) Start(ctx context.Context, dev DeviceDescriptor, inv Invocation) (*StreamHandle, error) {
	release, ok := r.locks.TryAcquire(dev.Identifier)
	if !ok {
		return nil, newError(KindDeviceBusy, "デバイス %s は使用中です", dev.Identifier)
	}

	h := &StreamHandle{
		ID:        uuid.New().String(),
		Device:    dev,
		StartedAt: time.Now(),
		release:   release,
		chunkSize: r.chunkSize,
		chunks:    make(chan []byte),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		state:     StreamStarting,
	}
	h.log = r.log.WithField("stream_id", h.ID)

	proc, err := r.exec.RunStreaming(inv)
	if err != nil {
		release()
		return nil, err
	}
	h.proc = proc
	h.setState(StreamStreaming)

	r.mu.Lock()
	r.active[h.ID] = h
	r.mu.Unlock()

	go h.run(func() {
		r.mu.Lock()
		delete(r.active, h.ID)
		r.mu.Unlock()
	})

	go func() {
		select {
		case <-ctx.Done():
			h.Stop()
		case <-h.done:
		}
	}()

	h.log.WithField("device", dev.Identifier).Info("ストリームを開始しました")
	return h, nil
}

// Stop は指定IDのストリームを停止する
func (r *StreamRelay) Stop(id string) error {
	r.mu.Lock()
	h, ok := r.active[id]
	r.mu.Unlock()

	if !ok {
		return ErrStreamNotFound
	}
	h.Stop()
	return nil
}

// StopAll は全てのストリームを停止する
func (r *StreamRelay) StopAll() {
	r.mu.Lock()
	handles := make([]*StreamHandle, 0, len(r.active))
	for _, h := range r.active {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

// Streams はアクティブなストリームの一覧を開始順に返す
func (r *StreamRelay) Streams() []StreamInfo {
	r.mu.Lock()
	infos := make([]StreamInfo, 0, len(r.active))
	for _, h := range r.active {
		infos = append(infos, h.Info())
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}
