package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/timeport-io/timeport/internal/models"
)

// S3Config holds S3 (or S3-compatible) store configuration.
type S3Config struct {
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible stores.
	// Empty means real AWS.
	Endpoint  string
	Container string
	// UploadTTL bounds the validity of presigned upload URLs.
	UploadTTL time.Duration
}

// S3Store implements Store on an S3-compatible object store.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	cfg       S3Config
	// httpClient fetches presigned download URLs; those are plain signed
	// GETs and must not be re-signed by the SDK.
	httpClient *http.Client
}

// NewS3Store creates a store using the ambient AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = time.Hour
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

// DownloadByName streams an object from the given container.
func (s *S3Store) DownloadByName(ctx context.Context, container, fileName string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(fileName),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, container, fileName)
		}
		return nil, fmt.Errorf("get object %s/%s: %w", container, fileName, err)
	}
	return out.Body, nil
}

// DownloadBySignedURL fetches a presigned URL with a plain GET.
func (s *S3Store) DownloadBySignedURL(ctx context.Context, signedURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download signed url: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: signed url", ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download signed url: unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// UploadInfo presigns one PUT URL per file name in the async container.
func (s *S3Store) UploadInfo(ctx context.Context, fileNames []string) (*models.BlobUploadInfo, error) {
	files := make(map[string]string, len(fileNames))
	for _, name := range fileNames {
		req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.cfg.Container),
			Key:    aws.String(name),
		}, s3.WithPresignExpires(s.cfg.UploadTTL))
		if err != nil {
			return nil, fmt.Errorf("presign upload %s: %w", name, err)
		}
		files[name] = req.URL
	}

	slog.Info("generated upload info", "container", s.cfg.Container, "files", strings.Join(fileNames, ","))

	return &models.BlobUploadInfo{
		ContainerURL: s.containerURL(),
		Container:    s.cfg.Container,
		Files:        files,
	}, nil
}

func (s *S3Store) containerURL() string {
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(s.cfg.Endpoint, "/"), s.cfg.Container)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.cfg.Container, s.cfg.Region)
}
