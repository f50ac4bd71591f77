package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "recordings/123/rec_1.mp4", OriginalKey("123", "rec_1"))
	prefix := StreamingPrefix("123", "rec_1")
	assert.Equal(t, "outputs/recordings/123/rec_1", prefix)
	assert.Equal(t, "outputs/recordings/123/rec_1/rec_1.m3u8", ManifestKey(prefix, "rec_1"))
	assert.Equal(t, "outputs/recordings/123/rec_1/rec_1_720p.m3u8", RenditionManifestKey(prefix, "rec_1", "720p"))
	assert.Equal(t, "s3://streaming/outputs/recordings/123/rec_1/", URI("streaming", prefix+"/"))
}

func TestKeysFlattenSlashes(t *testing.T) {
	assert.Equal(t, "recordings/123/ab_cd==.mp4", OriginalKey("123", "ab/cd=="))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestPresignExpireDefault(t *testing.T) {
	s := &S3{}
	assert.Equal(t, DefaultPresignExpire, s.PresignExpire())
	s.cfg.PresignExpireMinutes = 5
	assert.Equal(t, "5m0s", s.PresignExpire().String())
}
