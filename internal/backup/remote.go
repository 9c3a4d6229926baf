package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/tuisplit/internal/model"
)

const latestKey = "latest.json"

// RemoteConfig describes the S3 bucket that holds backups.
type RemoteConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

type objectClient interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Remote stores the latest dataset as a single object. Pushes overwrite it.
type Remote struct {
	log    logrus.FieldLogger
	client objectClient
	bucket string
	key    string
}

// NewRemote builds an S3 remote from cfg.
func NewRemote(log logrus.FieldLogger, cfg RemoteConfig) (*Remote, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup bucket is not configured")
	}
	return newRemote(log, newS3Client(cfg), cfg.Bucket, cfg.Prefix), nil
}

func newRemote(log logrus.FieldLogger, client objectClient, bucket, prefix string) *Remote {
	return &Remote{
		log:    log.WithField("component", "backup"),
		client: client,
		bucket: bucket,
		key:    objectKey(prefix),
	}
}

func objectKey(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return latestKey
	}
	return path.Join(prefix, latestKey)
}

func newS3Client(cfg RemoteConfig) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}

			if cfg.PathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}

// Push uploads ds as the latest backup.
func (r *Remote) Push(ctx context.Context, ds model.Dataset) error {
	var buf bytes.Buffer
	if err := Encode(&buf, FormatJSON, ds); err != nil {
		return err
	}
	size := buf.Len()
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object %q: %w", r.key, err)
	}
	r.log.WithField("key", r.key).WithField("bytes", size).Info("backup uploaded")
	return nil
}

// Pull downloads the latest backup. It returns ErrNoBackup when none exists.
func (r *Remote) Pull(ctx context.Context) (model.Dataset, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return model.Dataset{}, ErrNoBackup
		}
		return model.Dataset{}, fmt.Errorf("getting object %q: %w", r.key, err)
	}
	defer func() { _ = out.Body.Close() }()

	ds, err := Decode(out.Body, FormatJSON)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("reading object %q: %w", r.key, err)
	}
	r.log.WithField("key", r.key).Info("backup downloaded")
	return ds, nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	// Some S3-compatible servers only put the code in the message.
	return strings.Contains(err.Error(), "NoSuchKey")
}
