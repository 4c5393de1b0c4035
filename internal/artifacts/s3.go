package artifacts

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/rs/zerolog/log"
)

// S3Uploader copies run directories to a bucket under <prefix>/<sweep_id>/.
type S3Uploader struct {
	Bucket   string
	Prefix   string
	uploader s3manageriface.UploaderAPI
}

// NewS3Uploader builds an uploader from the default credential chain.
func NewS3Uploader(bucket, prefix, region string) (*S3Uploader, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            aws.Config{Region: aws.String(region)},
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return NewS3UploaderWith(s3manager.NewUploader(sess), bucket, prefix), nil
}

// NewS3UploaderWith wraps an existing uploader.
func NewS3UploaderWith(u s3manageriface.UploaderAPI, bucket, prefix string) *S3Uploader {
	return &S3Uploader{Bucket: bucket, Prefix: prefix, uploader: u}
}

// Key is the object key of a file in a run.
func (u *S3Uploader) Key(sweepID, rel string) string {
	return path.Join(u.Prefix, sweepID, filepath.ToSlash(rel))
}

// UploadRun uploads every regular file of runDir and returns the keys.
func (u *S3Uploader) UploadRun(ctx context.Context, runDir, sweepID string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(runDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(runDir, p)
		if err != nil {
			return err
		}
		key := u.Key(sweepID, rel)
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := u.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(u.Bucket),
			Key:    aws.String(key),
			Body:   f,
		}); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return keys, err
	}
	log.Info().Str("bucket", u.Bucket).Str("sweep_id", sweepID).Int("files", len(keys)).Msg("Uploaded sweep artifacts")
	return keys, nil
}
