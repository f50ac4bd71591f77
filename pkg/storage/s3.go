package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const (
	// FolderRecordings is the prefix for original recording assets.
	FolderRecordings = "recordings"
	// FolderOutputs is the prefix for transcoder output.
	FolderOutputs = "outputs"
	// DefaultPresignExpire is the lifetime of playback URLs.
	DefaultPresignExpire = time.Hour
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	OriginalsBucket      string
	StreamingBucket      string
	PresignExpireMinutes int
}

// Object is one listed object.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// S3 provides S3 operations and pre-signed URLs.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// LoadAWSConfig builds an aws.Config from static keys when set, else the default credential chain.
func LoadAWSConfig(ctx context.Context, region, accessKey, secretKey string, logger *zap.Logger) (aws.Config, error) {
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		if logger != nil {
			logger.Info("AWS clients using credentials from .env/config", zap.String("region", region))
		}
	} else if logger != nil {
		logger.Warn("AWS clients using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewS3 creates an S3 client from an already loaded aws.Config.
func NewS3(awsCfg aws.Config, cfg S3Config, logger *zap.Logger) *S3 {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 16 * 1024 * 1024 // recordings are large; fewer parts
	})
	return &S3{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}
}

// OriginalKey returns the original asset key: recordings/{meeting_id}/{recording_id}.mp4.
func OriginalKey(meetingID, recordingID string) string {
	return path.Join(FolderRecordings, keySegment(meetingID), keySegment(recordingID)+".mp4")
}

// StreamingPrefix returns the transcoder output prefix: outputs/recordings/{meeting_id}/{recording_id}.
func StreamingPrefix(meetingID, recordingID string) string {
	return path.Join(FolderOutputs, FolderRecordings, keySegment(meetingID), keySegment(recordingID))
}

// ManifestKey returns the HLS master manifest key under a streaming prefix.
func ManifestKey(streamingPrefix, recordingID string) string {
	return path.Join(streamingPrefix, keySegment(recordingID)+".m3u8")
}

// RenditionManifestKey returns the per-rendition manifest key, e.g. {prefix}/{id}_720p.m3u8.
func RenditionManifestKey(streamingPrefix, recordingID, label string) string {
	return path.Join(streamingPrefix, keySegment(recordingID)+"_"+label+".m3u8")
}

// URI returns the s3://bucket/key form used by the transcoder.
func URI(bucket, key string) string {
	return "s3://" + bucket + "/" + strings.TrimPrefix(key, "/")
}

// keySegment keeps provider ids (which may contain '/') to a single key segment.
func keySegment(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(s)
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return DefaultPresignExpire
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// OriginalsBucket returns the original asset bucket name.
func (s *S3) OriginalsBucket() string { return s.cfg.OriginalsBucket }

// StreamingBucket returns the transcoder output bucket name.
func (s *S3) StreamingBucket() string { return s.cfg.StreamingBucket }

// GeneratePresignedDownloadURL returns a pre-signed GET URL.
func (s *S3) GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// Upload streams a reader to S3 using multipart upload.
func (s *S3) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) error {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

// Exists reports whether the object is present. A missing object is not an error.
func (s *S3) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head object: %w", err)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// List returns all objects under prefix.
func (s *S3) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var out []Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			o := Object{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				o.LastModified = *obj.LastModified
			}
			out = append(out, o)
		}
	}
	return out, nil
}

// Bucket returns a handle bound to one bucket.
func (s *S3) Bucket(name string) *Bucket {
	return &Bucket{s3: s, name: name}
}

// Bucket is an S3 client bound to a single bucket.
type Bucket struct {
	s3   *S3
	name string
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Exists reports whether key is present in the bucket.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	return b.s3.Exists(ctx, b.name, key)
}

// Put uploads body under key.
func (b *Bucket) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	return b.s3.Upload(ctx, b.name, key, contentType, body, size)
}

// PresignGet returns a time-limited GET URL for key.
func (b *Bucket) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return b.s3.GeneratePresignedDownloadURL(ctx, b.name, key, ttl)
}

// List returns the objects under prefix.
func (b *Bucket) List(ctx context.Context, prefix string) ([]Object, error) {
	return b.s3.List(ctx, b.name, prefix)
}
