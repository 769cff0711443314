package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	// PostgreSQLドライバ
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id SERIAL PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	description TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// PostgresStore はPostgreSQLを使ったStore実装
type PostgresStore struct {
	db  *sql.DB
	log logrus.FieldLogger
}

var _ Store = (*PostgresStore)(nil)

// ConnectOptions は接続時のリトライ設定
type ConnectOptions struct {
	Attempts int
	Interval time.Duration
}

// Connect はデータベースに接続する
// 起動時のみ、Attempts回までInterval間隔で再試行する
func Connect(ctx context.Context, url string, opts ConnectOptions, log logrus.FieldLogger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("データベース設定が不正です: %w", err)
	}

	err = retry(ctx, opts, log, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースに接続できませんでした: %w", err)
	}

	log.Info("データベースに接続しました")
	return &PostgresStore{db: db, log: log}, nil
}

// retry はfnが成功するまでInterval間隔で再試行する
func retry(ctx context.Context, opts ConnectOptions, log logrus.FieldLogger, fn func() error) error {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.Interval), uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"next":    next,
		}).Warn("データベース接続に失敗、再試行します")
	}

	return backoff.RetryNotify(func() error {
		attempt++
		return fn()
	}, policy, notify)
}

// Migrate はdevicesテーブルを作成する
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("devicesテーブルの作成に失敗: %w", err)
	}
	return nil
}

// Close は接続を閉じる
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping は接続を確認する
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Create(ctx context.Context, in Input) (Device, error) {
	d := Device{Title: in.Title, Description: in.Description}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO devices(title, description) VALUES($1, $2) RETURNING id, created_at",
		in.Title, in.Description,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return Device{}, fmt.Errorf("デバイスの登録に失敗: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, COALESCE(description, ''), created_at FROM devices ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("デバイス一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.Title, &d.Description, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("デバイス行の読み込みに失敗: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, id int64, in Input) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE devices SET title=$1, description=$2 WHERE id=$3", in.Title, in.Description, id)
	if err != nil {
		return fmt.Errorf("デバイスの更新に失敗: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE id=$1", id)
	if err != nil {
		return fmt.Errorf("デバイスの削除に失敗: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
