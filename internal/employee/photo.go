package employee

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/attendman/internal/model"
)

// allowedPhotoTypes は受け付ける拡張子と、内容から判定したContent-Typeの対応。
var allowedPhotoTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// PhotoStore は従業員写真をディレクトリに保存する。
// ファイル名はアップロード時の名前を使わず、UUIDと拡張子から生成する。
type PhotoStore struct {
	dir     string
	maxSize int64
}

// NewPhotoStore はPhotoStoreを生成する。
func NewPhotoStore(dir string, maxSize int64) *PhotoStore {
	return &PhotoStore{dir: dir, maxSize: maxSize}
}

// Save は写真を保存し、保存したファイル名を返す。
// 拡張子と先頭バイトの両方が許可された画像形式でない場合はINVALID_PHOTOエラーを返す。
func (s *PhotoStore) Save(originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	wantType, ok := allowedPhotoTypes[ext]
	if !ok {
		return "", model.NewInvalidPhotoError(fmt.Sprintf("unsupported file type %q", ext))
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", model.NewInvalidPhotoError("file is empty")
	}
	if got := http.DetectContentType(head); got != wantType {
		return "", model.NewInvalidPhotoError(fmt.Sprintf("content does not match %s", ext))
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	name := uuid.New().String() + ext
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create photo file: %w", err)
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	if s.maxSize > 0 {
		body = io.LimitReader(body, s.maxSize+1)
	}
	written, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if s.maxSize > 0 && written > s.maxSize {
		os.Remove(path)
		return "", model.NewInvalidPhotoError(fmt.Sprintf("file exceeds %d bytes", s.maxSize))
	}

	return name, nil
}

// Remove は保存済みの写真を削除する。nameが空または存在しない場合は何もしない。
func (s *PhotoStore) Remove(name string) error {
	if name == "" {
		return nil
	}
	// 保存時に生成した名前以外（パス区切りを含む等）は扱わない
	if filepath.Base(name) != name {
		return fmt.Errorf("invalid photo name: %q", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove photo: %w", err)
	}
	return nil
}
