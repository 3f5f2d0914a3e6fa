package objectclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/markdave123-py/contexta-kb/internal/config"
	"github.com/markdave123-py/contexta-kb/internal/core"
)

func TestNewS3Client_Validation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     *cfg.Config
		setting string
	}{
		{"no credentials", &cfg.Config{AwsRegion: "us-east-2", BucketName: "kb"}, "AWS_ACCESS_KEY"},
		{"no region", &cfg.Config{AwsAccessKey: "a", AwsSecretKey: "s", BucketName: "kb"}, "AWS_REGION"},
		{"no bucket", &cfg.Config{AwsAccessKey: "a", AwsSecretKey: "s", AwsRegion: "us-east-2"}, "BUCKET_NAME"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewS3Client(context.Background(), tc.cfg, nil)
			var cerr *core.ConfigurationError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tc.setting, cerr.Setting)
		})
	}

	_, err := NewS3Client(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestNewS3Client_Configured(t *testing.T) {
	c, err := NewS3Client(context.Background(), &cfg.Config{
		AwsAccessKey: "a", AwsSecretKey: "s", AwsRegion: "eu-west-1", BucketName: "kb",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", c.region)
}

func TestObjectURL(t *testing.T) {
	assert.Equal(t,
		"https://kb.s3.eu-west-1.amazonaws.com/users/u1/documents/d1/a.pdf",
		objectURL("kb", "eu-west-1", "users/u1/documents/d1/a.pdf"))
}
