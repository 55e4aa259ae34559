package backup

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/itisrohit/nanoindex/errs"
)

// MinioStore implements Store over MinIO or any S3-compatible endpoint,
// grounded on the teacher's blobstore/minio.Store.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore returns a MinioStore rooted at bucket/prefix.
func NewMinioStore(client *minio.Client, bucket, prefix string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *MinioStore) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *MinioStore) Put(ctx context.Context, name string, data []byte) error {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return errs.New(errs.KindStorageFatal, "backup.MinioStore.Put", err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, name string) ([]byte, error) {
	key := s.key(name)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errs.New(errs.KindStorageFatal, "backup.MinioStore.Get", err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return nil, errs.New(errs.KindNotFound, "backup.MinioStore.Get", err)
		}
		return nil, errs.New(errs.KindStorageFatal, "backup.MinioStore.Get", err)
	}

	data, err := readAllLimited(obj)
	if err != nil {
		return nil, errs.New(errs.KindStorageFatal, "backup.MinioStore.Get", err)
	}
	return data, nil
}

func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	fullPrefix := s.key(prefix)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: fullPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errs.New(errs.KindStorageFatal, "backup.MinioStore.List", obj.Err)
		}
		out = append(out, strings.TrimPrefix(obj.Key, s.prefix+"/"))
	}
	return out, nil
}
