package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"autograde/internal/common/storage"
	"autograde/internal/grading/model"
	appErr "autograde/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const (
	compressedSuffix      = ".zst"
	defaultPackTimeout    = 5 * time.Second
	defaultMaxPackBytes   = 64 << 20
	testPackContentType   = "application/json"
	compressedContentType = "application/zstd"
)

// TestPackLoader reads and writes test packs in object storage.
// Keys ending in ".zst" hold zstd-compressed JSON.
type TestPackLoader struct {
	storage  storage.ObjectStorage
	bucket   string
	timeout  time.Duration
	maxBytes int64
}

// NewTestPackLoader creates a loader for bucket.
func NewTestPackLoader(store storage.ObjectStorage, bucket string, timeout time.Duration, maxBytes int64) *TestPackLoader {
	if timeout <= 0 {
		timeout = defaultPackTimeout
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxPackBytes
	}
	return &TestPackLoader{storage: store, bucket: bucket, timeout: timeout, maxBytes: maxBytes}
}

func (l *TestPackLoader) Load(ctx context.Context, key string) (model.TestPack, error) {
	if l == nil || l.storage == nil {
		return model.TestPack{}, appErr.New(appErr.ServiceUnavailable).WithMessage("test pack storage is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	stat, err := l.storage.StatObject(ctx, l.bucket, key)
	if err != nil {
		return model.TestPack{}, mapStorageError(err, key)
	}
	if stat.SizeBytes > l.maxBytes {
		return model.TestPack{}, appErr.Newf(appErr.GradingConfigInvalid, "test pack %s is %d bytes, limit is %d", key, stat.SizeBytes, l.maxBytes)
	}

	obj, err := l.storage.GetObject(ctx, l.bucket, key)
	if err != nil {
		return model.TestPack{}, mapStorageError(err, key)
	}
	defer obj.Close()

	var reader io.Reader = obj
	if strings.HasSuffix(key, compressedSuffix) {
		zstdReader, err := zstd.NewReader(obj)
		if err != nil {
			return model.TestPack{}, appErr.Wrapf(err, appErr.InternalServerError, "create zstd reader failed")
		}
		defer zstdReader.Close()
		reader = zstdReader
	}

	var pack model.TestPack
	dec := json.NewDecoder(io.LimitReader(reader, l.maxBytes))
	if err := dec.Decode(&pack); err != nil {
		return model.TestPack{}, appErr.Wrapf(err, appErr.GradingConfigInvalid, "decode test pack %s failed", key)
	}
	if err := pack.Config.Validate(); err != nil {
		return model.TestPack{}, err
	}
	return pack, nil
}

func (l *TestPackLoader) Save(ctx context.Context, key string, pack model.TestPack) error {
	if l == nil || l.storage == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("test pack storage is not configured")
	}
	payload, err := json.Marshal(pack)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "encode test pack failed")
	}
	contentType := testPackContentType
	if strings.HasSuffix(key, compressedSuffix) {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return appErr.Wrapf(err, appErr.InternalServerError, "create zstd writer failed")
		}
		payload = enc.EncodeAll(payload, nil)
		_ = enc.Close()
		contentType = compressedContentType
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.storage.PutObject(ctx, l.bucket, key, bytes.NewReader(payload), int64(len(payload)), contentType); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "store test pack %s failed", key)
	}
	return nil
}

func mapStorageError(err error, key string) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return appErr.Newf(appErr.TestPackNotFound, "test pack %s not found", key)
	}
	return appErr.Wrapf(err, appErr.ServiceUnavailable, "read test pack %s failed", key)
}
