package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFetchWritesObjectToLocalFile(t *testing.T) {
	store := &mapStore{objects: map[string][]byte{"user-1/a/data.parquet": []byte("PAR1")}}
	local := filepath.Join(t.TempDir(), "a.parquet")

	written, err := Fetch(context.Background(), store, "user-1/a/data.parquet", local)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if written != 4 {
		t.Fatalf("written = %d", written)
	}
	body, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(body) != "PAR1" {
		t.Fatalf("body = %q", body)
	}
}

func TestFetchMissingObject(t *testing.T) {
	store := &mapStore{objects: map[string][]byte{}}
	_, err := Fetch(context.Background(), store, "missing", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Fetch() error = %v, want ErrObjectNotFound", err)
	}
}

type mapStore struct {
	objects map[string][]byte
}

func (m *mapStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ PutOptions) (ObjectInfo, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return ObjectInfo{}, err
	}
	m.objects[key] = payload
	return ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}

func (m *mapStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	payload, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (m *mapStore) Stat(_ context.Context, key string) (ObjectInfo, error) {
	payload, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}
