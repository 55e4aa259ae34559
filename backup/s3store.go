package backup

import (
	"bytes"
	"context"
	"errors"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/itisrohit/nanoindex/errs"
)

// S3Store implements Store over AWS S3, grounded on the teacher's
// blobstore/s3.Store (key prefixing via path.Join, NoSuchKey mapped to
// errs.KindNotFound).
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store returns an S3Store rooted at bucket/prefix.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *S3Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errs.New(errs.KindStorageFatal, "backup.S3Store.Put", err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, errs.New(errs.KindNotFound, "backup.S3Store.Get", err)
		}
		return nil, errs.New(errs.KindStorageFatal, "backup.S3Store.Get", err)
	}
	defer out.Body.Close()
	data, err := readAllLimited(out.Body)
	if err != nil {
		return nil, errs.New(errs.KindStorageFatal, "backup.S3Store.Get", err)
	}
	return data, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	fullPrefix := s.key(prefix)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errs.New(errs.KindStorageFatal, "backup.S3Store.List", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			out = append(out, strings.TrimPrefix(key, s.prefix+"/"))
		}
	}
	return out, nil
}
