package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveConfig locates the replay bucket.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// objectPutter is the slice of the MinIO client the archive uses.
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioArchive writes full round replays, code included, to object storage.
type MinioArchive struct {
	client objectPutter
	bucket string
}

var _ Sink = (*MinioArchive)(nil)

// NewMinioArchive connects to the bucket, creating it when missing.
func NewMinioArchive(ctx context.Context, cfg ArchiveConfig) (*MinioArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioArchive{client: client, bucket: cfg.Bucket}, nil
}

func (a *MinioArchive) Name() string { return "archive" }

// ObjectKey is where rec's replay is stored.
func ObjectKey(rec Record) string {
	if !rec.Scored() {
		return fmt.Sprintf("rooms/%s/%s-%04d-%s.json", rec.RoomID, rec.Kind, rec.Round, rec.ID)
	}
	return fmt.Sprintf("rooms/%s/round-%04d-%s.json", rec.RoomID, rec.Round, rec.ID)
}

// Store uploads rec as JSON. Re-uploading the same record overwrites it.
func (a *MinioArchive) Store(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = a.client.PutObject(ctx, a.bucket, ObjectKey(rec), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", ObjectKey(rec), err)
	}
	return nil
}
