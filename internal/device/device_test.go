package device

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// exerciseStore はStore実装に共通の振る舞いを確認する
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	created, err := s.Create(ctx, Input{Title: "玄関カメラ", Description: "HD Pro Webcam C920"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	second, err := s.Create(ctx, Input{Title: "庭カメラ", Description: "USB"})
	require.NoError(t, err)

	devices, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, created.ID, devices[0].ID)
	assert.Equal(t, "玄関カメラ", devices[0].Title)

	require.NoError(t, s.Update(ctx, second.ID, Input{Title: "裏庭カメラ", Description: "USB 2"}))
	devices, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "裏庭カメラ", devices[1].Title)
	assert.Equal(t, "USB 2", devices[1].Description)

	require.NoError(t, s.Delete(ctx, created.ID))
	devices, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	assert.True(t, errors.Is(s.Delete(ctx, created.ID), ErrNotFound))
	assert.True(t, errors.Is(s.Update(ctx, created.ID, Input{Title: "x", Description: "y"}), ErrNotFound))
}

// TestMemoryStore はメモリ上の台帳のCRUDをテストする
func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

// TestMemoryStore_Ping はメモリ上の台帳が常に到達可能であることをテストする
func TestMemoryStore_Ping(t *testing.T) {
	assert.NoError(t, NewMemoryStore().Ping(context.Background()))
}

// TestMemoryStore_EmptyList は空の一覧がnilでないことをテストする
func TestMemoryStore_EmptyList(t *testing.T) {
	devices, err := NewMemoryStore().List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

// TestRetry は接続が成功するまで再試行することをテストする
func TestRetry(t *testing.T) {
	calls := 0
	err := retry(context.Background(), ConnectOptions{Attempts: 5, Interval: time.Millisecond}, testLogger(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestRetry_GivesUp は上限回数で諦めて最後のエラーを返すことをテストする
func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := retry(context.Background(), ConnectOptions{Attempts: 5, Interval: time.Millisecond}, testLogger(), func() error {
		calls++
		return errors.New("connection refused")
	})
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, 5, calls)
}

// TestRetry_StopsOnCancel はコンテキストのキャンセルで再試行をやめることをテストする
func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry(ctx, ConnectOptions{Attempts: 5, Interval: time.Hour}, testLogger(), func() error {
		calls++
		cancel()
		return errors.New("connection refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

// TestPostgresStore は実データベースが利用できる場合のみ実行する
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("SHASHIN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SHASHIN_TEST_DATABASE_URL が設定されていません")
	}

	ctx := context.Background()
	s, err := Connect(ctx, url, ConnectOptions{Attempts: 1}, testLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
	_, err = s.db.ExecContext(ctx, "TRUNCATE devices RESTART IDENTITY")
	require.NoError(t, err)

	exerciseStore(t, s)
}
