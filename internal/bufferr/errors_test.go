package bufferr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	err := Wrap(KindLoadFailure, "load page", errors.New("disk full"))
	assert.True(t, errors.Is(err, KindLoadFailure.Sentinel()))
	assert.False(t, errors.Is(err, KindDetachedSave.Sentinel()))
}

func TestErrorUnwrapReachesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindLoadFailure, "load page", cause)
	assert.ErrorIs(t, err, cause)
}

func TestNewHasNoCause(t *testing.T) {
	err := New(KindInvalidArgument, "bad position")
	assert.Nil(t, err.Unwrap())
	assert.Contains(t, err.Error(), "bad position")
}

func TestClassifyLoadFailure(t *testing.T) {
	assert.Equal(t, CauseFileDeleted, ClassifyLoadFailure(WrapFileDeleted("gone")))
	assert.Equal(t, CauseFileTruncated, ClassifyLoadFailure(WrapFileTruncated("short")))
	assert.Equal(t, CausePermissionDenied, ClassifyLoadFailure(WrapPermissionDenied("denied")))
	assert.Equal(t, CauseDataCorruption, ClassifyLoadFailure(WrapDataCorruption("bad crc")))
	assert.Equal(t, CauseStorageFailure, ClassifyLoadFailure(errors.New("some other I/O error")))
}
