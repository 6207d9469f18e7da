package storage

import (
	"context"
	"fmt"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// PutObject uploads body under objectKey.
	PutObject(ctx context.Context, objectKey string, contentType string, body []byte) error

	// GeneratePresignedDownloadURL creates a temporary URL that allows GET requests
	// for downloading an object directly from the storage provider.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)
}

// SnapshotKey is the object key of the draft snapshot archived by an apply.
func SnapshotKey(draftID, auditID string) string {
	return fmt.Sprintf("drafts/%s/snapshots/%s.json", draftID, auditID)
}

// SnapshotArchive writes post-apply draft snapshots to object storage.
type SnapshotArchive struct {
	files  FileStorage
	expiry time.Duration
}

func NewSnapshotArchive(files FileStorage, expiry time.Duration) *SnapshotArchive {
	if expiry <= 0 {
		expiry = DefaultPresignedURLExpiry
	}
	return &SnapshotArchive{files: files, expiry: expiry}
}

// Archive uploads snapshotJSON and returns the object key and a presigned
// download URL for it.
func (a *SnapshotArchive) Archive(ctx context.Context, draftID, auditID, snapshotJSON string) (key, url string, err error) {
	key = SnapshotKey(draftID, auditID)
	if err = a.files.PutObject(ctx, key, "application/json", []byte(snapshotJSON)); err != nil {
		return "", "", fmt.Errorf("upload snapshot: %w", err)
	}
	url, err = a.files.GeneratePresignedDownloadURL(ctx, key, a.expiry)
	if err != nil {
		return key, "", fmt.Errorf("presign snapshot: %w", err)
	}
	return key, url, nil
}
