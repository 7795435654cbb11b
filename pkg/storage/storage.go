package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore persists case documents by key.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// DraftKey addresses a staged upload that is not attached to a case yet.
func DraftKey(userID, fileID, name string) string {
	return path.Join(userID, "drafts", fileID, SafeName(name))
}

// DocumentKey addresses a document promoted onto a persisted case.
func DocumentKey(userID, fileID, name string) string {
	return path.Join(userID, "documents", fileID, SafeName(name))
}

// IsDraftKey reports whether key lives under a user's drafts prefix.
func IsDraftKey(key string) bool {
	parts := strings.Split(path.Clean(strings.ReplaceAll(key, "\\", "/")), "/")
	return len(parts) >= 2 && parts[1] == "drafts"
}

// DraftOwner returns the user a draft key belongs to.
func DraftOwner(key string) (string, bool) {
	if !IsDraftKey(key) {
		return "", false
	}
	parts := strings.Split(path.Clean(strings.ReplaceAll(key, "\\", "/")), "/")
	return parts[0], parts[0] != ""
}

// SafeName strips directory components so a client supplied file name can be
// used as the final key segment.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == ".." || base == "" {
		return "file"
	}
	return base
}

// Copier is implemented by stores that can duplicate an object server side.
type Copier interface {
	CopyObject(ctx context.Context, src, dst string) error
}

// Copy duplicates the object at src into dst within the same store.
func Copy(ctx context.Context, store BlobStore, src, dst, contentType string) error {
	if c, ok := store.(Copier); ok {
		return c.CopyObject(ctx, src, dst)
	}
	rc, err := store.Get(ctx, src)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck
	return store.Put(ctx, dst, rc, -1, contentType)
}
