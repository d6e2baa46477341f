// Package blobstore mirrors project artifacts into an S3-compatible object
// store. Mirroring is best-effort: a dead blob store never fails a
// pipeline stage, it only costs the off-box copy.
package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vibeacademy/vidarr/internal/storage"
)

// Bucket layout: full project trees in one bucket, generated shorts in
// their own so they can be browsed and expired independently.
const (
	BucketProjects = "projects"
	BucketShorts   = "shorts"
)

// mirrorFiles are the root-level artifacts worth keeping off-box.
var mirrorFiles = []string{
	storage.FileConfig,
	storage.FileScreen,
	storage.FileWebcam,
	storage.FileOriginal,
	storage.FileNoSilence,
	storage.FileIllustrated,
	storage.FileThumbnail,
	storage.FileTranscription,
	storage.FileTranscriptText,
	storage.FileSEO,
	storage.FileSchedule,
}

// Config holds the object store connection settings. Bucket names default
// to BucketProjects and BucketShorts when unset.
type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ProjectsBucket string
	ShortsBucket   string
}

// Store wraps the object store client.
type Store struct {
	client         *minio.Client
	logger         *slog.Logger
	projectsBucket string
	shortsBucket   string
}

// New connects to the object store and ensures the buckets exist.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "blobstore")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: connecting to %s: %w", cfg.Endpoint, err)
	}

	if cfg.ProjectsBucket == "" {
		cfg.ProjectsBucket = BucketProjects
	}
	if cfg.ShortsBucket == "" {
		cfg.ShortsBucket = BucketShorts
	}

	store := &Store{
		client:         client,
		logger:         logger,
		projectsBucket: cfg.ProjectsBucket,
		shortsBucket:   cfg.ShortsBucket,
	}
	if err := store.ensureBuckets(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.projectsBucket, s.shortsBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("blobstore: checking bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("blobstore: creating bucket %s: %w", bucket, err)
			}
			s.logger.Info("bucket created", "bucket", bucket)
		}
	}
	return nil
}

// UploadFile copies one local file into a bucket.
func (s *Store) UploadFile(ctx context.Context, bucket, objectName, localPath string) error {
	_, err := s.client.FPutObject(ctx, bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(localPath),
	})
	if err != nil {
		return fmt.Errorf("blobstore: uploading %s/%s: %w", bucket, objectName, err)
	}
	return nil
}

// MirrorProject uploads a project's artifacts: root files and broll/ clips
// into the projects bucket, shorts into the shorts bucket. Per-file errors
// are logged and skipped; the returned map lists what actually made it.
func (s *Store) MirrorProject(ctx context.Context, folderName string, sandbox *storage.Sandbox) map[string]string {
	uploaded := make(map[string]string)

	mirror := func(bucket, relPath string) {
		localPath, err := sandbox.ResolvePath(relPath)
		if err != nil {
			s.logger.Warn("mirror skip", "file", relPath, "error", err)
			return
		}
		objectName := path.Join(folderName, filepath.ToSlash(relPath))
		if err := s.UploadFile(ctx, bucket, objectName, localPath); err != nil {
			s.logger.Warn("mirror failed", "file", relPath, "error", err)
			return
		}
		uploaded[relPath] = bucket + "/" + objectName
	}

	for _, name := range mirrorFiles {
		exists, err := sandbox.Exists(name)
		if err != nil || !exists {
			continue
		}
		mirror(s.projectsBucket, name)
	}

	for dir, bucket := range map[string]string{
		storage.DirShorts: s.shortsBucket,
		storage.DirBroll:  s.projectsBucket,
	} {
		entries, err := sandbox.List(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp4") {
				continue
			}
			mirror(bucket, filepath.Join(dir, entry.Name()))
		}
	}

	s.logger.Info("project mirrored", "project", folderName, "files", len(uploaded))
	return uploaded
}

// PresignedURL returns a time-limited read URL for an object.
func (s *Store) PresignedURL(ctx context.Context, bucket, objectName string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("blobstore: presigning %s/%s: %w", bucket, objectName, err)
	}
	return u.String(), nil
}

// DeleteProject removes every mirrored object under the project's prefix
// in both buckets.
func (s *Store) DeleteProject(ctx context.Context, folderName string) error {
	prefix := folderName + "/"
	for _, bucket := range []string{s.projectsBucket, s.shortsBucket} {
		objects := s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		})
		for object := range objects {
			if object.Err != nil {
				return fmt.Errorf("blobstore: listing %s/%s: %w", bucket, prefix, object.Err)
			}
			if err := s.client.RemoveObject(ctx, bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
				return fmt.Errorf("blobstore: removing %s/%s: %w", bucket, object.Key, err)
			}
		}
	}
	return nil
}

// contentTypeFor maps artifact extensions to MIME types.
func contentTypeFor(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	case ".txt", ".ass":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
