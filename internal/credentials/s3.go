package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ytget/yt-saver-bot/internal/model"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures an S3 or S3-compatible endpoint.
type S3Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client builds a client from opts. Static keys are used when set,
// otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Store keeps jars at <prefix>/<userID>/cookies.txt in a bucket and
// materializes them under cacheDir for yt-dlp.
type S3Store struct {
	api      S3API
	bucket   string
	prefix   string
	cacheDir string
	maxBytes int64
}

func NewS3Store(api S3API, bucket, prefix, cacheDir string, maxBytes int64) *S3Store {
	return &S3Store{api: api, bucket: bucket, prefix: prefix, cacheDir: cacheDir, maxBytes: maxBytes}
}

func (s *S3Store) key(userID int64) string {
	return path.Join(s.prefix, strconv.FormatInt(userID, 10), FileName)
}

func (s *S3Store) Put(ctx context.Context, userID int64, fileName string, data []byte) (*model.CredentialRef, error) {
	if err := Validate(fileName, data, s.maxBytes); err != nil {
		return nil, err
	}

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(userID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return nil, fmt.Errorf("put cookie object: %w", err)
	}

	local := userPath(s.cacheDir, userID)
	if err := writeFileAtomic(local, data); err != nil {
		return nil, err
	}
	return &model.CredentialRef{UserID: userID, Path: local}, nil
}

func (s *S3Store) Get(ctx context.Context, userID int64) (*model.CredentialRef, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(userID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cookie object: %w", err)
	}
	defer out.Body.Close()

	limit := s.maxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read cookie object: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: stored object exceeds %d bytes", ErrInvalidFormat, limit)
	}

	local := userPath(s.cacheDir, userID)
	if err := writeFileAtomic(local, data); err != nil {
		return nil, err
	}
	return &model.CredentialRef{UserID: userID, Path: local}, nil
}
