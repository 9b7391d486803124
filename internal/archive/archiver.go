package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Exporter produces the export document to archive.
type Exporter interface {
	ExportData(ctx context.Context) ([]byte, error)
}

// Receipt describes an archived export.
type Receipt struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Bytes     int       `json:"bytes"`
}

// Archiver exports the local store and uploads the document.
type Archiver struct {
	exporter Exporter
	uploader Uploader
	userID   string
	now      func() time.Time
}

// NewArchiver creates an Archiver for userID.
func NewArchiver(exporter Exporter, uploader Uploader, userID string) *Archiver {
	return &Archiver{
		exporter: exporter,
		uploader: uploader,
		userID:   userID,
		now:      time.Now,
	}
}

// Enabled reports whether uploads go anywhere.
func (a *Archiver) Enabled() bool {
	_, noop := a.uploader.(*NoopUploader)
	return !noop
}

// Archive uploads a fresh export and returns where to fetch it.
func (a *Archiver) Archive(ctx context.Context) (*Receipt, error) {
	data, err := a.exporter.ExportData(ctx)
	if err != nil {
		return nil, fmt.Errorf("export data: %w", err)
	}

	key, err := a.uploader.Upload(ctx, a.userID, data, a.now())
	if err != nil {
		return nil, err
	}

	url, expiry, err := a.uploader.PresignedURL(ctx, key)
	if err != nil {
		return nil, err
	}

	slog.Info("export archived",
		"component", "archive",
		"action", "archive_uploaded",
		"user_id", a.userID,
		"key", key,
		"bytes", len(data),
	)

	return &Receipt{Key: key, URL: url, ExpiresAt: expiry, Bytes: len(data)}, nil
}
