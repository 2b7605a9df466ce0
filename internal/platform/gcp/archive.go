package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/yungbote/questweaver/internal/platform/logger"
)

var ErrArchiveDisabled = errors.New("quest archive disabled")

// Archive stores finished quest documents.
type Archive interface {
	Put(ctx context.Context, questID string, body []byte) (string, error)
	Get(ctx context.Context, questID string) ([]byte, error)
	Close() error
}

type gcsArchive struct {
	log    *logger.Logger
	cfg    ArchiveConfig
	client *storage.Client
}

func NewArchive(ctx context.Context, log *logger.Logger, cfg ArchiveConfig) (Archive, error) {
	if !cfg.Enabled() {
		return nil, ErrArchiveDisabled
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	client, err := storage.NewClient(ctx, cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	log = log.With("service", "QuestArchive", "bucket", cfg.Bucket, "mode", cfg.Mode)
	log.Info("quest archive initialized")
	return &gcsArchive{log: log, cfg: cfg, client: client}, nil
}

func (a *gcsArchive) Put(ctx context.Context, questID string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	key := a.cfg.ObjectKey(questID)
	w := a.client.Bucket(a.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json; charset=utf-8"
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	a.log.Debug("quest archived", "key", key, "bytes", len(body))
	return a.cfg.PublicURL(key), nil
}

func (a *gcsArchive) Get(ctx context.Context, questID string) ([]byte, error) {
	r, err := a.client.Bucket(a.cfg.Bucket).Object(a.cfg.ObjectKey(questID)).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (a *gcsArchive) Close() error { return a.client.Close() }
