package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideBase 路径不在存储根目录内
var ErrOutsideBase = errors.New("path escapes blob storage root")

// Store 附件版本文件存储
//
// 目录结构: {base}/attachments/{spaceKey}/{lineageID}/{version}_{filename}
type Store struct {
	basePath string
}

// Usage 存储用量
type Usage struct {
	Files    int64  `json:"files"`
	Bytes    int64  `json:"bytes"`
	BasePath string `json:"basePath"`
}

// NewStore 创建文件存储实例，根目录不存在时自动创建
func NewStore(basePath string) (*Store, error) {
	base, err := cleanBase(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{basePath: base}, nil
}

// BasePath 返回存储根目录
func (s *Store) BasePath() string {
	return s.basePath
}

// Save 保存附件版本内容
//
// 返回值: 相对于根目录的存储路径，写入 Attachment.StoragePath
func (s *Store) Save(spaceKey, lineageID string, version int, filename string, content []byte) (string, error) {
	dir := filepath.Join(s.basePath, "attachments", safeSegment(spaceKey), safeSegment(lineageID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create attachment directory: %w", err)
	}

	file := filepath.Join(dir, fmt.Sprintf("%d_%s", version, safeSegment(filename)))
	if err := os.WriteFile(file, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}

	rel, err := filepath.Rel(s.basePath, file)
	if err != nil {
		return file, nil
	}
	return filepath.ToSlash(rel), nil
}

// Read 读取附件版本内容
func (s *Store) Read(relPath string) ([]byte, error) {
	file, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(file)
}

// Remove 删除附件版本文件，并清理变空的父目录
//
// 文件不存在视为成功。
func (s *Store) Remove(relPath string) error {
	if relPath == "" {
		return nil
	}
	file, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove attachment file: %w", err)
	}

	root := filepath.Join(s.basePath, "attachments")
	for dir := filepath.Dir(file); dir != root && strings.HasPrefix(dir, root); dir = filepath.Dir(dir) {
		if entries, err := os.ReadDir(dir); err != nil || len(entries) > 0 {
			break
		}
		os.Remove(dir)
	}
	return nil
}

// Usage 统计存储目录下的文件数量和总大小
func (s *Store) Usage() (*Usage, error) {
	usage := &Usage{BasePath: s.basePath}
	root := filepath.Join(s.basePath, "attachments")

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		usage.Files++
		usage.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}

// resolve 将相对路径转换为绝对路径，拒绝越出根目录的路径
func (s *Store) resolve(relPath string) (string, error) {
	file := filepath.Join(s.basePath, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(s.basePath, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, relPath)
	}
	return file, nil
}
