// Package contentstore is where photo bytes live. The wall server never
// keeps image data in its own database: it hands each upload to a Store,
// remembers the opaque reference it gets back, and later asks the Store to
// turn that reference back into bytes for the displays.
package contentstore

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sakif/photo-wall/internal/config"
)

// Object is one upload on its way into a Store.
type Object struct {
	Body        io.Reader
	Filename    string
	ContentType string
	Caption     string
}

// Content is a resolved reference. The caller must close Body.
type Content struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64 // -1 when unknown
}

// Store accepts payloads and resolves the references it hands out.
//
// Resolve returns an apperror.ErrNotFound for a reference the store does not
// know. Any other error means the store itself failed.
type Store interface {
	Put(ctx context.Context, obj Object) (ref string, err error)
	Resolve(ctx context.Context, ref string) (*Content, error)
}

// NewFromConfig creates the Store selected by cfg.Type. client is used by
// the HTTP-based backends; nil means http.DefaultClient.
func NewFromConfig(ctx context.Context, cfg config.ContentStoreConfig, client *http.Client) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "telegram":
		if cfg.TelegramBotToken == "" || cfg.TelegramChatID == "" {
			return nil, fmt.Errorf("telegram content store requires telegram_bot_token and telegram_chat_id")
		}
		return NewTelegramStore(TelegramConfig{
			BotToken: cfg.TelegramBotToken,
			ChatID:   cfg.TelegramChatID,
			APIBase:  cfg.TelegramAPIBase,
		}, client), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 content store requires s3_bucket")
		}
		store, err := NewS3Store(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			HTTPClient:      client,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown content store type: %s", cfg.Type)
	}
}
