package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/storekeeper/internal/common"
	"github.com/dmitrijs2005/storekeeper/internal/rpc"
	"github.com/dmitrijs2005/storekeeper/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssetService(t *testing.T) *AssetService {
	t.Helper()
	cfg := &config.Config{
		S3Region:                "us-east-1",
		S3RootUser:              "minioadmin",
		S3RootPassword:          "minioadmin",
		S3BaseEndpoint:          "http://127.0.0.1:9000",
		S3Bucket:                "storekeeper",
		PresignValidityDuration: 15 * time.Minute,
	}
	return NewAssetService(cfg)
}

// stubPresign replaces the AWS seams and records the signed keys.
func stubPresign(t *testing.T) *[]string {
	t.Helper()
	origLoad, origPut, origGet := loadDefaultAWSConfig, presignPutObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig, presignPutObject, presignGetObject = origLoad, origPut, origGet
	})

	var keys []string
	loadDefaultAWSConfig = func(_ context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				return aws.Config{}, err
			}
		}
		if lo.Region != "us-east-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		return aws.Config{Region: lo.Region}, nil
	}
	presignPutObject = func(_ *s3.PresignClient, _ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		keys = append(keys, "PUT "+*in.Bucket+"/"+*in.Key)
		return &v4.PresignedHTTPRequest{URL: "http://s3/put/" + *in.Key, Method: http.MethodPut}, nil
	}
	presignGetObject = func(_ *s3.PresignClient, _ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		keys = append(keys, "GET "+*in.Bucket+"/"+*in.Key)
		return &v4.PresignedHTTPRequest{URL: "http://s3/get/" + *in.Key, Method: http.MethodGet}, nil
	}
	return &keys
}

func TestPresign_UploadAndDownload(t *testing.T) {
	keys := stubPresign(t)
	svc := newAssetService(t)
	ctx := context.Background()

	up, err := svc.Presign(ctx, "W1", &rpc.PresignRequest{Method: http.MethodPut, Path: "assets/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "assets/a.png", up.Path)
	assert.Equal(t, "http://s3/put/workspaces/W1/assets/a.png", up.URL)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), up.ExpiresAt, time.Minute)

	down, err := svc.Presign(ctx, "W1", &rpc.PresignRequest{Method: http.MethodGet, Path: "assets/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "http://s3/get/workspaces/W1/assets/a.png", down.URL)

	assert.Equal(t, []string{
		"PUT storekeeper/workspaces/W1/assets/a.png",
		"GET storekeeper/workspaces/W1/assets/a.png",
	}, *keys)
}

func TestPresign_UploadWithoutPath(t *testing.T) {
	stubPresign(t)
	svc := newAssetService(t)

	resp, err := svc.Presign(context.Background(), "W1", &rpc.PresignRequest{Method: http.MethodPut})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Path, "assets/"))
	assert.Contains(t, resp.URL, "workspaces/W1/assets/")
}

func TestPresign_Validation(t *testing.T) {
	stubPresign(t)
	svc := newAssetService(t)
	ctx := context.Background()

	for _, req := range []*rpc.PresignRequest{
		{Method: http.MethodDelete, Path: "assets/a.png"},
		{Method: http.MethodGet},
		{Method: http.MethodGet, Path: "../W2/assets/a.png"},
		{Method: http.MethodGet, Path: "/etc/passwd"},
		{Method: http.MethodGet, Path: "assets/../../x"},
	} {
		_, err := svc.Presign(ctx, "W1", req)
		require.ErrorIs(t, err, common.ErrorValidation, "%+v", req)
	}
}

func TestPresign_SignerError(t *testing.T) {
	stubPresign(t)
	presignGetObject = func(*s3.PresignClient, context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("boom")
	}
	svc := newAssetService(t)

	_, err := svc.Presign(context.Background(), "W1", &rpc.PresignRequest{Method: http.MethodGet, Path: "assets/a.png"})
	require.ErrorIs(t, err, common.ErrorInternal)
}

func TestPresign_ConfigError(t *testing.T) {
	stubPresign(t)
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	svc := newAssetService(t)

	_, err := svc.Presign(context.Background(), "W1", &rpc.PresignRequest{Method: http.MethodPut, Path: "assets/a.png"})
	require.ErrorIs(t, err, common.ErrorInternal)
}
