package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/server/config"
	"github.com/google/uuid"
)

// Seams over the AWS SDK, swapped in tests.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

var uploadContentTypes = []string{"image/", "video/", "model/", "application/octet-stream"}

// MediaService hands out presigned S3 PUT URLs so clients upload media
// straight to object storage.
type MediaService struct {
	config *config.Config
	clock  clock.Clock
}

func NewMediaService(cfg *config.Config, clk clock.Clock) *MediaService {
	return &MediaService{config: cfg, clock: clk}
}

// StorageKey returns a fresh object key under the user's prefix.
func (s *MediaService) StorageKey(userID string) string {
	d := s.clock.Now().UTC()
	return fmt.Sprintf("users/%s/%d/%02d/%02d/%s", userID, d.Year(), d.Month(), d.Day(), uuid.NewString())
}

func (s *MediaService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		// MinIO and most S3-compatible stores expect path-style URLs.
		o.UsePathStyle = true
	})
	return s3.NewPresignClient(client), nil
}

// PresignUpload returns the object key and a presigned PUT URL for it.
func (s *MediaService) PresignUpload(ctx context.Context, userID, contentType string) (string, string, error) {
	if !allowedContentType(contentType) {
		return "", "", fmt.Errorf("%w: content type %q is not accepted", common.ErrorValidation, contentType)
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := s.StorageKey(userID)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.presignExpiry()))
	if err != nil {
		return "", "", err
	}
	return key, req.URL, nil
}

func (s *MediaService) presignExpiry() time.Duration {
	if s.config.PresignExpiry > 0 {
		return s.config.PresignExpiry
	}
	return 15 * time.Minute
}

func allowedContentType(ct string) bool {
	for _, p := range uploadContentTypes {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}
