package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// FileVariantCache stores variants on the filesystem, one directory per
// identifier. Writes go to a temp file and are renamed into place on
// commit, so a client disconnect can never leave a truncated entry.
type FileVariantCache struct {
	basePath string
}

func NewFileVariantCache(basePath string) (*FileVariantCache, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating variant cache directory: %w", err)
	}
	return &FileVariantCache{basePath: basePath}, nil
}

func (c *FileVariantCache) identifierDir(id entity.Identifier) string {
	return filepath.Join(c.basePath, id.PathComponent())
}

func (c *FileVariantCache) entryPath(key Key) string {
	return filepath.Join(c.identifierDir(key.ID), key.Hash)
}

func (c *FileVariantCache) Open(ctx context.Context, key Key) (io.ReadCloser, *entity.StatResult, error) {
	path := c.entryPath(key)
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, entity.ErrCacheMiss
		}
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, entity.NewStatResult(fi.ModTime(), fi.Size()), nil
}

func (c *FileVariantCache) Create(ctx context.Context, key Key) (EntryWriter, error) {
	dir := c.identifierDir(key.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	tmp := filepath.Join(dir, key.Hash+".tmp-"+uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	return &fileEntryWriter{file: f, tmpPath: tmp, finalPath: c.entryPath(key)}, nil
}

func (c *FileVariantCache) Stat(ctx context.Context, key Key) (*entity.StatResult, error) {
	fi, err := os.Stat(c.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, entity.ErrCacheMiss
		}
		return nil, err
	}
	return entity.NewStatResult(fi.ModTime(), fi.Size()), nil
}

func (c *FileVariantCache) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	return os.RemoveAll(c.identifierDir(id))
}

func (c *FileVariantCache) EvictAll(ctx context.Context) error {
	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.basePath, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

type fileEntryWriter struct {
	file      *os.File
	tmpPath   string
	finalPath string
	done      bool
}

func (w *fileEntryWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

func (w *fileEntryWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return err
	}
	return os.Rename(w.tmpPath, w.finalPath)
}

func (w *fileEntryWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.file.Close()
	return os.Remove(w.tmpPath)
}

// FileInfoCache stores one JSON document per identifier.
type FileInfoCache struct {
	basePath string
}

func NewFileInfoCache(basePath string) (*FileInfoCache, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating info cache directory: %w", err)
	}
	return &FileInfoCache{basePath: basePath}, nil
}

func (c *FileInfoCache) path(id entity.Identifier) string {
	return filepath.Join(c.basePath, id.PathComponent()+".json")
}

func (c *FileInfoCache) Put(ctx context.Context, id entity.Identifier, info *entity.Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	// temp file + rename, same atomicity rule as the variant tier
	tmp := c.path(id) + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(id))
}

func (c *FileInfoCache) Get(ctx context.Context, id entity.Identifier) (*entity.Info, error) {
	data, err := os.ReadFile(c.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, entity.ErrCacheMiss
		}
		return nil, err
	}
	var info entity.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *FileInfoCache) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	err := os.Remove(c.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (c *FileInfoCache) EvictAll(ctx context.Context) error {
	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			if err := os.Remove(filepath.Join(c.basePath, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *FileInfoCache) EvictInvalid(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		return 0, err
	}
	evicted := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(c.basePath, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var info entity.Info
		if err := json.Unmarshal(data, &info); err == nil && info.Valid() {
			continue
		}
		if err := os.Remove(path); err == nil {
			evicted++
		}
	}
	return evicted, nil
}
