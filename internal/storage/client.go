// Package storage mirrors finalized log files to an S3-compatible bucket.
package storage

import (
	"context"
	"path"
	"strings"
)

// Uploader defines the offsite mirror operations used by the pipeline
type Uploader interface {
	UploadFile(ctx context.Context, key, localPath string) error
}

// Config contains client configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
	Prefix    string
}

// ObjectKey joins the configured prefix and path segments into an object key
func ObjectKey(prefix string, segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	return path.Join(parts...)
}
