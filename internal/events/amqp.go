package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AMQPPublisher はRabbitMQのキューへメッセージを送る
type AMQPPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	log   logrus.FieldLogger
}

// Dial はRabbitMQに接続してキューを宣言する
// キューは非永続（durable=false）
func Dial(url, queue string, timeout time.Duration, log logrus.FieldLogger) (*AMQPPublisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, fmt.Errorf("RabbitMQへの接続に失敗: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("チャンネルの作成に失敗: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, false, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("キュー %s の宣言に失敗: %w", queue, err)
	}

	log.WithField("queue", queue).Info("RabbitMQに接続しました")
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue, log: log}, nil
}

// PublishDeviceCreated はデバイス登録メッセージをJSONで送信する
func (p *AMQPPublisher) PublishDeviceCreated(ctx context.Context, ev DeviceCreated) error {
	msg, err := newPublishing(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("メッセージの送信に失敗: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"queue":      p.queue,
		"message_id": msg.MessageId,
		"title":      ev.Title,
	}).Info("メッセージを送信しました")
	return nil
}

// Close はチャンネルと接続を閉じる
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Close(); err != nil {
		p.log.WithError(err).Warn("チャンネルのクローズに失敗")
	}
	return p.conn.Close()
}

func newPublishing(ev DeviceCreated) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("メッセージのエンコードに失敗: %w", err)
	}

	return amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		Timestamp:   time.Now(),
		Body:        body,
	}, nil
}
