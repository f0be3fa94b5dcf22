package media

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"layoo/cmd/internal/retry"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures S3Uploader.
type S3Config struct {
	Region string
	Bucket string
	// Endpoint overrides the AWS endpoint (MinIO and other S3-compatible stores).
	Endpoint string
	// Prefix is prepended to every object key.
	Prefix string
	// PublicBaseURL is used to build returned URLs. Empty means the virtual-hosted AWS URL.
	PublicBaseURL string
}

// S3Uploader uploads files with the multipart-capable s3 manager.
type S3Uploader struct {
	uploader *manager.Uploader
	cfg      S3Config
}

// NewS3Uploader loads the default AWS credential chain and builds an uploader.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("media: empty bucket")
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{uploader: manager.NewUploader(client), cfg: cfg}, nil
}

// Upload implements Uploader. The local file is removed after a successful upload.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	key := u.key(filepath.Base(localPath))
	ct := mime.TypeByExtension(filepath.Ext(localPath))
	if ct == "" {
		ct = "application/octet-stream"
	}

	if _, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ct),
	}); err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", retry.Transient(err)
	}

	_ = f.Close()
	Remove(localPath)
	return u.publicURL(key), nil
}

func (u *S3Uploader) key(name string) string {
	p := strings.Trim(u.cfg.Prefix, "/")
	if p == "" {
		return name
	}
	return p + "/" + name
}

func (u *S3Uploader) publicURL(key string) string {
	if u.cfg.PublicBaseURL != "" {
		return joinURL(u.cfg.PublicBaseURL, key)
	}
	if u.cfg.Endpoint != "" {
		return joinURL(strings.TrimRight(u.cfg.Endpoint, "/")+"/"+u.cfg.Bucket, key)
	}
	return joinURL(fmt.Sprintf("https://%s.s3.%s.amazonaws.com", u.cfg.Bucket, u.cfg.Region), key)
}
