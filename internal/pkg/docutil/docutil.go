// Package docutil 提供评测结果文件的读写工具函数。
package docutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kart-io/essay-qa/pkg/utils/json"
)

// PersistenceError 表示结果文件写入失败，评测运行应当中止。
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// EnsureDir 确保目录存在，如果不存在则创建。
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// FileStamp 返回可用于文件名的 UTC 时间戳，如 2024-03-01T10-20-30-123Z。
func FileStamp(t time.Time) string {
	s := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(s)
}

// WriteJSON 以缩进 JSON 整体替换 path：先写同目录临时文件再重命名，
// 读者只会看到旧文件或完整的新文件。失败返回 *PersistenceError。
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return &PersistenceError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &PersistenceError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

// ReadJSON 读取 JSON 文件到 v。
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
