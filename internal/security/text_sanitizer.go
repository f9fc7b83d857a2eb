// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はフォームから入力された従業員名や住所などのテキストから
// HTMLタグを取り除き、プレーンテキストとして保存できる形に正規化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキスト入力のサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize はタグを除去したプレーンテキストを返す。
	// 前後の空白は除去し、連続する空白は1つにまとめる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerServiceを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// 出力はテンプレート側でエスケープされるため、bluemondayが付けた実体参照は元に戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
