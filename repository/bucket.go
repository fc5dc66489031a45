package repository

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Publisher uploads the committed output files of a deployment.
type Publisher interface {
	PublishDeployment(ctx context.Context, deployment string, files []string) error
}

// BucketPublisher copies output files to an S3-compatible bucket under
// <prefix>/<deployment>/<file name>.
type BucketPublisher struct {
	Client *minio.Client
	Bucket string
	Prefix string
}

// NewBucketPublisher connects to endpoint with static credentials.
func NewBucketPublisher(endpoint, accessKeyID, secretKey, bucket, prefix string, secure bool) (*BucketPublisher, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}
	return &BucketPublisher{Client: client, Bucket: bucket, Prefix: prefix}, nil
}

// ObjectKey returns the key a local file is uploaded to.
func (b *BucketPublisher) ObjectKey(deployment, file string) string {
	return strings.TrimPrefix(path.Join(b.Prefix, deployment, filepath.Base(file)), "/")
}

// PublishDeployment uploads files of one deployment.
func (b *BucketPublisher) PublishDeployment(ctx context.Context, deployment string, files []string) error {
	if b == nil || b.Client == nil {
		return fmt.Errorf("s3 client not initialized")
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.upload(ctx, b.ObjectKey(deployment, f), f); err != nil {
			return err
		}
	}
	return nil
}

func (b *BucketPublisher) upload(ctx context.Context, key, file string) error {
	fh, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer fh.Close()

	st, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", file, err)
	}

	_, err = b.Client.PutObject(
		ctx,
		b.Bucket,
		key,
		fh,
		st.Size(),
		minio.PutObjectOptions{
			ContentType: contentType(file),
		},
	)
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return nil
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".csv":
		return "text/csv"
	case ".yaml":
		return "application/yaml"
	}
	return "application/octet-stream"
}
