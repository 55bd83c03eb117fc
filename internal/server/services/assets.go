package services

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/dmitrijs2005/storekeeper/internal/server/config"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// AssetService hands out presigned object storage URLs. Objects live under a
// per-workspace prefix; clients only ever see paths relative to it.
type AssetService struct {
	config *config.Config
}

func NewAssetService(cfg *config.Config) *AssetService {
	return &AssetService{config: cfg}
}

func newAssetPath() string {
	d := time.Now().UTC()
	return fmt.Sprintf("assets/%d/%02d/%02d/%s", d.Year(), d.Month(), d.Day(), uuid.NewString())
}

// objectKey maps a client path to the storage key inside the workspace prefix.
func objectKey(workspaceID, p string) (string, error) {
	clean := path.Clean(p)
	if p == "" || clean != p || path.IsAbs(p) || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", fmt.Errorf("%w: invalid asset path %q", common.ErrorValidation, p)
	}
	return "workspaces/" + workspaceID + "/" + clean, nil
}

func (s *AssetService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
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
		o.UsePathStyle = true
	})
	return newS3PresignClient(client), nil
}

// Presign returns a URL for uploading (PUT) or downloading (GET) an asset of
// the workspace. An upload without a path gets a fresh one.
func (s *AssetService) Presign(ctx context.Context, workspaceID string, req *rpc.PresignRequest) (*rpc.PresignResponse, error) {
	if req.Method != http.MethodPut && req.Method != http.MethodGet {
		return nil, fmt.Errorf("%w: unsupported method %q", common.ErrorValidation, req.Method)
	}
	p := req.Path
	if req.Method == http.MethodPut && p == "" {
		p = newAssetPath()
	}
	key, err := objectKey(workspaceID, p)
	if err != nil {
		return nil, err
	}

	pc, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	bucket := s.config.S3Bucket
	validity := s.config.PresignValidityDuration
	expires := s3.WithPresignExpires(validity)

	var signed *v4.PresignedHTTPRequest
	if req.Method == http.MethodPut {
		signed, err = presignPutObject(pc, ctx, &s3.PutObjectInput{Bucket: &bucket, Key: &key}, expires)
	} else {
		signed, err = presignGetObject(pc, ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key}, expires)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	return &rpc.PresignResponse{
		URL:       signed.URL,
		Path:      p,
		ExpiresAt: time.Now().Add(validity),
	}, nil
}
