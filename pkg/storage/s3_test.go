package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockS3 struct {
	GetObjectFunc  func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObjectFunc func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

func (m *MockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return m.GetObjectFunc(ctx, params, optFns...)
}

func (m *MockS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return m.HeadObjectFunc(ctx, params, optFns...)
}

func body(s string) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(s))}
}

func TestDownload(t *testing.T) {
	t.Run("Sucesso", func(t *testing.T) {
		mockClient := &MockS3{
			GetObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
				assert.Equal(t, "docs", *params.Bucket)
				assert.Equal(t, "in/a.pdf", *params.Key)
				return body("%PDF-1.4 content"), nil
			},
		}
		dest := filepath.Join(t.TempDir(), "a.pdf")

		n, err := NewDownloader(mockClient, 0).Download(context.Background(), "docs", "in/a.pdf", dest)
		require.NoError(t, err)
		assert.Equal(t, int64(16), n)

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 content", string(data))
	})

	t.Run("Erro na AWS", func(t *testing.T) {
		mockClient := &MockS3{
			GetObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
				return nil, errors.New("NoSuchKey")
			},
		}
		_, err := NewDownloader(mockClient, 0).Download(context.Background(), "docs", "x", filepath.Join(t.TempDir(), "x"))
		assert.ErrorContains(t, err, "NoSuchKey")
	})

	t.Run("Limite pelo ContentLength", func(t *testing.T) {
		mockClient := &MockS3{
			GetObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
				out := body("0123456789")
				out.ContentLength = aws.Int64(10)
				return out, nil
			},
		}
		_, err := NewDownloader(mockClient, 5).Download(context.Background(), "docs", "x", filepath.Join(t.TempDir(), "x"))
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("Limite sem ContentLength", func(t *testing.T) {
		mockClient := &MockS3{
			GetObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
				return body("0123456789"), nil
			},
		}
		_, err := NewDownloader(mockClient, 5).Download(context.Background(), "docs", "x", filepath.Join(t.TempDir(), "x"))
		assert.ErrorIs(t, err, ErrTooLarge)
	})
}

func TestStat(t *testing.T) {
	mockClient := &MockS3{
		HeadObjectFunc: func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(42), ETag: aws.String(`"abc"`)}, nil
		},
	}
	obj, err := NewDownloader(mockClient, 0).Stat(context.Background(), "docs", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(42), obj.Size)
	assert.Equal(t, "abc", obj.ETag)
}
