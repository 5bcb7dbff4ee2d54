package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/supabase-community/supabase-go"
)

// ErrStorageDisabled is returned when Supabase is not configured.
var ErrStorageDisabled = errors.New("storage: supabase not configured")

// SupabaseStorage stores call recordings in a Supabase Storage bucket.
type SupabaseStorage struct {
	Bucket string
	upload func(bucket, key string, r io.Reader) error
}

// NewSupabaseStorage constructs a Supabase storage client. An empty url or
// key yields a storage whose Upload returns ErrStorageDisabled.
func NewSupabaseStorage(baseURL, serviceKey, bucket string) (*SupabaseStorage, error) {
	s := &SupabaseStorage{Bucket: bucket}
	if baseURL == "" || serviceKey == "" {
		return s, nil
	}
	client, err := supabase.NewClient(strings.TrimRight(baseURL, "/"), serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: create supabase client: %w", err)
	}
	s.upload = func(bucket, key string, r io.Reader) error {
		_, err := client.Storage.UploadFile(bucket, key, r)
		return err
	}
	return s, nil
}

// Enabled reports whether uploads are possible.
func (s *SupabaseStorage) Enabled() bool { return s != nil && s.upload != nil }

// Upload stores body under objectKey.
func (s *SupabaseStorage) Upload(objectKey string, contentType string, body []byte) error {
	if !s.Enabled() {
		return ErrStorageDisabled
	}
	key := ObjectKey(objectKey)
	if key == "" {
		return fmt.Errorf("storage: invalid object key %q", objectKey)
	}
	if err := s.upload(s.Bucket, key, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("storage: upload %s (%s): %w", key, contentType, err)
	}
	return nil
}

// ObjectKey cleans a caller supplied key so it stays inside the bucket.
func ObjectKey(key string) string {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return strings.TrimPrefix(k, "/")
}
