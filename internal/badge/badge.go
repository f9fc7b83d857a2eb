// Package badge は従業員IDを埋め込んだQRコード画像（バッジ）を生成する。
package badge

import (
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// DefaultSize はQRコード画像の既定の一辺のピクセル数。
const DefaultSize = 256

// Renderer はQRコード画像をディレクトリに書き出す。
// 画像のファイル名は "{従業員ID}.png"。
type Renderer struct {
	dir  string
	size int
}

// NewRenderer はRendererを生成する。sizeが0以下の場合はDefaultSizeを使う。
func NewRenderer(dir string, size int) *Renderer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Renderer{dir: dir, size: size}
}

// FileName は従業員IDに対応する画像ファイル名を返す。
func FileName(employeeID int64) string {
	return strconv.FormatInt(employeeID, 10) + ".png"
}

// Path は従業員IDに対応する画像のパスを返す。
func (r *Renderer) Path(employeeID int64) string {
	return filepath.Join(r.dir, FileName(employeeID))
}

// Render は従業員IDを10進数文字列としてエンコードしたQRコードを書き出す。
// 書き込みは一時ファイル経由で行い、失敗時に壊れた画像を残さない。
func (r *Renderer) Render(employeeID int64) error {
	if employeeID <= 0 {
		return fmt.Errorf("invalid employee ID: %d", employeeID)
	}

	code, err := qr.Encode(strconv.FormatInt(employeeID, 10), qr.M, qr.Auto)
	if err != nil {
		return fmt.Errorf("failed to encode qr code: %w", err)
	}
	scaled, err := barcode.Scale(code, r.size, r.size)
	if err != nil {
		return fmt.Errorf("failed to scale qr code: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create badge directory: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".badge-*.png")
	if err != nil {
		return fmt.Errorf("failed to create badge file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, scaled); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write badge png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close badge file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod badge file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.Path(employeeID)); err != nil {
		return fmt.Errorf("failed to store badge file: %w", err)
	}
	return nil
}

// Exists は画像が生成済みかどうかを返す。
func (r *Renderer) Exists(employeeID int64) bool {
	info, err := os.Stat(r.Path(employeeID))
	return err == nil && !info.IsDir()
}

// Remove は画像を削除する。存在しない場合は何もしない。
func (r *Renderer) Remove(employeeID int64) error {
	err := os.Remove(r.Path(employeeID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove badge file: %w", err)
	}
	return nil
}
