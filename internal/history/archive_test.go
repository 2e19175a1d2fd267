package history

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePutter struct {
	bucket, key string
	body        []byte
	opts        minio.PutObjectOptions
}

func (c *capturePutter) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	c.bucket, c.key, c.body, c.opts = bucket, key, body, opts
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func TestMinioArchiveStoresFullRecord(t *testing.T) {
	putter := &capturePutter{}
	archive := &MinioArchive{client: putter, bucket: "rounds"}

	rec := record(3)
	rec.Detail = json.RawMessage(`{"late_submissions":[{"code":"print(1)"}]}`)
	require.NoError(t, archive.Store(context.Background(), rec))

	assert.Equal(t, "rounds", putter.bucket)
	assert.Equal(t, ObjectKey(rec), putter.key)
	assert.Contains(t, putter.key, "round-0003")
	assert.Equal(t, "application/json", putter.opts.ContentType)

	var got Record
	require.NoError(t, json.Unmarshal(putter.body, &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.JSONEq(t, string(rec.Detail), string(got.Detail))
}

func TestObjectKeySeparatesUnscoredRecords(t *testing.T) {
	rec := record(2)
	rec.Kind = KindLate

	assert.Contains(t, ObjectKey(rec), "late_submission-0002")

	rec.Kind = KindRound
	assert.Contains(t, ObjectKey(rec), "round-0002")
}
