package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CBOR modes: canonical encoding for stable bytes, bounded decoding for
// records read back from shared backends.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

//nolint:gochecknoinits // CBOR modes are configured once at package load
func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoding mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 10000,
		MaxMapPairs:      10000,
		MaxNestedLevels:  16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoding mode: %v", err))
	}
}

// Marshal serializes a value to CBOR bytes.
func Marshal[T any](v T) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal failed: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes CBOR bytes into a value of type T.
func Unmarshal[T any](data []byte) (T, error) {
	var v T
	if err := decMode.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("cbor unmarshal failed: %w", err)
	}
	return v, nil
}

// GetRecord reads and decodes a CBOR record stored at key.
func GetRecord[T any](ctx context.Context, s Store, key string) (T, error) {
	var zero T
	data, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	v, err := Unmarshal[T](data)
	if err != nil {
		return zero, NewOperationError("decode", key, err)
	}
	return v, nil
}

// SetRecord encodes v as CBOR and stores it at key.
func SetRecord[T any](ctx context.Context, s Store, key string, v T, ttl time.Duration) error {
	data, err := Marshal(v)
	if err != nil {
		return NewOperationError("encode", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}
