package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	pferrors "github.com/pulseflow/pulseflow/pkg/errors"
)

// S3Config configures the S3 dead-letter backend.
type S3Config struct {
	// Bucket is the S3 bucket for archived batches
	Bucket string

	// Prefix is prepended to all archive keys (e.g., "dead-letter/")
	Prefix string

	// Region is the AWS region
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Timeout for S3 operations
	Timeout time.Duration

	// StorageClass for archive objects (default: STANDARD)
	StorageClass types.StorageClass

	// ServerSideEncryption enables SSE-S3 encryption
	ServerSideEncryption bool
}

// DefaultS3Config returns sensible defaults.
func DefaultS3Config(bucket string) S3Config {
	return S3Config{
		Bucket:       bucket,
		Prefix:       "dead-letter/",
		Timeout:      30 * time.Second,
		StorageClass: types.StorageClassStandard,
	}
}

// S3Archiver stores dead-letter records in S3, one object per batch.
type S3Archiver struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Archiver creates a new S3 archiver.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.CodeArchiveFailed, "failed to load AWS config")
	}

	s3Opts := []func(*s3.Options){}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &S3Archiver{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// key returns the S3 key for a record. Records are laid out by date so old
// batches can be expired with a lifecycle rule.
func (a *S3Archiver) key(rec *Record) string {
	return fmt.Sprintf("%s%s/%s.json", a.cfg.Prefix, rec.ArchivedAt.UTC().Format("2006/01/02"), rec.ID)
}

// Archive writes one dead-letter record to S3.
func (a *S3Archiver) Archive(ctx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return pferrors.Wrap(err, pferrors.CodeArchiveFailed, "failed to marshal archive record")
	}

	input := &s3.PutObjectInput{
		Bucket:       aws.String(a.cfg.Bucket),
		Key:          aws.String(a.key(rec)),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/json"),
		StorageClass: a.cfg.StorageClass,
	}

	if a.cfg.ServerSideEncryption {
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return pferrors.Wrap(err, pferrors.CodeArchiveFailed, "failed to archive batch to S3").
			WithContext("bucket", a.cfg.Bucket).
			WithContext("record_id", rec.ID)
	}

	return nil
}

// List returns all archived records under the configured prefix.
func (a *S3Archiver) List(ctx context.Context) ([]*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var records []*Record
	var continuationToken *string

	for {
		output, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.cfg.Bucket),
			Prefix:            aws.String(a.cfg.Prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, pferrors.Wrap(err, pferrors.CodeArchiveFailed, "failed to list archive records")
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			rec, err := a.load(ctx, key)
			if err != nil {
				continue // Skip unreadable records
			}
			records = append(records, rec)
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	return records, nil
}

func (a *S3Archiver) load(ctx context.Context, key string) (*Record, error) {
	output, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Cleanup removes archived records older than maxAge.
func (a *S3Archiver) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	records, err := a.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, rec := range records {
		if !rec.ArchivedAt.Before(cutoff) {
			continue
		}
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.cfg.Bucket),
			Key:    aws.String(a.key(rec)),
		})
		if err == nil {
			removed++
		}
	}

	return removed, nil
}

// Name returns "s3".
func (a *S3Archiver) Name() string { return "s3" }
