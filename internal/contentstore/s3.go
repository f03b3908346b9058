package contentstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/clock"
)

// S3Config points an S3Store at a bucket. Endpoint and UsePathStyle exist for
// S3-compatible servers such as MinIO.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	HTTPClient      *http.Client
}

// S3Store keeps each photo as one object under Prefix. The reference is the
// object key with the prefix removed.
type S3Store struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
	ids      clock.IDGenerator
}

// NewS3Store loads AWS configuration and builds the S3 client.
//
// Static keys are used when both are set; otherwise the default AWS
// credential chain applies (env, shared config, instance role).
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(cfg.HTTPClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("contentstore: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		// Many S3-compatible servers reject the newer default checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3Store{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		client:   client,
		uploader: manager.NewUploader(client),
		ids:      clock.XIDGenerator{},
	}, nil
}

func (s *S3Store) key(ref string) string {
	return s.prefix + ref
}

// Put uploads obj. The uploader switches to multipart for large payloads,
// so the body is never read fully into memory.
func (s *S3Store) Put(ctx context.Context, obj Object) (string, error) {
	ref := s.ids.New()

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
		Body:   obj.Body,
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if obj.Caption != "" || obj.Filename != "" {
		input.Metadata = map[string]string{}
		if obj.Caption != "" {
			input.Metadata["caption"] = obj.Caption
		}
		if obj.Filename != "" {
			input.Metadata["filename"] = obj.Filename
		}
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("contentstore: uploading %s: %w", ref, err)
	}
	return ref, nil
}

// Resolve opens the object behind ref. The body streams from S3.
func (s *S3Store) Resolve(ctx context.Context, ref string) (*Content, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, apperror.NotFound("content", ref)
		}
		return nil, fmt.Errorf("contentstore: getting %s: %w", ref, err)
	}

	ct := aws.ToString(out.ContentType)
	if ct == "" {
		ct = "application/octet-stream"
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return &Content{Body: out.Body, ContentType: ct, Size: size}, nil
}

var _ Store = (*S3Store)(nil)
