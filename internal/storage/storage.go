// Package storage stores question attachments (graph captures) behind a
// common provider interface: a local directory for single-host deployments,
// or a MinIO/S3 bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/soundlab/soundcoach/internal/model"
)

// Provider stores and retrieves attachment objects.
type Provider interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
}

// AttachmentName derives the object name for an attachment from the student
// name, question id, and upload time.
func AttachmentName(studentName string, id model.QuestionID, at time.Time, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "png"
	}
	student := strings.ReplaceAll(studentName, " ", "_")
	return fmt.Sprintf("%s/%s_%s.%s", student, id, at.Format("20060102T150405"), ext)
}

// Local stores attachments under a directory on disk.
type Local struct {
	Dir string
}

// NewLocal creates a local provider rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

func (l *Local) Save(_ context.Context, name string, r io.Reader, _ int64, _ string) (string, error) {
	dst := filepath.Join(l.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create attachment dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create attachment file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return name, nil
}

func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(l.Dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("open attachment %s: %w", name, err)
	}
	return f, nil
}

func (l *Local) Remove(_ context.Context, name string) error {
	if err := os.Remove(filepath.Join(l.Dir, filepath.FromSlash(name))); err != nil {
		return fmt.Errorf("remove attachment %s: %w", name, err)
	}
	return nil
}

// Minio stores attachments in a MinIO/S3 bucket.
type Minio struct {
	client *minio.Client
	bucket string
}

// NewMinio creates a MinIO-backed provider and ensures the bucket exists.
func NewMinio(ctx context.Context, endpoint, accessKey, secretKey, bucket string, secure bool) (*Minio, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &Minio{client: client, bucket: bucket}, nil
}

func (m *Minio) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put attachment %s: %w", name, err)
	}
	return name, nil
}

func (m *Minio) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get attachment %s: %w", name, err)
	}
	return obj, nil
}

func (m *Minio) Remove(ctx context.Context, name string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove attachment %s: %w", name, err)
	}
	return nil
}
