// 患者が入力する自由記述テキスト（予約メモ、診療履歴の説明）と
// 外部フィード由来のお知らせ要約のサニタイズを提供する。
// bluemondayライブラリの許可リストベースのポリシーを使用する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// InputSanitizerService は入力テキストのサニタイズ機能のインターフェースを定義する。
// プラットフォームへの書き込み前およびAPI応答時に使用される。
type InputSanitizerService interface {
	// SanitizeText は患者入力テキストからすべてのHTMLタグを除去し、
	// プレーンテキストとして安全な文字列を返す。
	// 前後の空白は取り除かれる。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string

	// SanitizeSummary はお知らせフィードの要約HTMLをサニタイズする。
	// 書式タグ（p, br, ul, ol, li, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	SanitizeSummary(rawHTML string) string
}

// inputSanitizer はInputSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type inputSanitizer struct {
	strict  *bluemonday.Policy
	summary *bluemonday.Policy
}

// NewInputSanitizer はInputSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのポリシーを2種類構築する:
//   - strict: 全タグ除去（患者入力テキスト用）
//   - summary: 書式タグのみ許可（お知らせ要約用）。リンクは許可しない。
func NewInputSanitizer() *inputSanitizer {
	summary := bluemonday.NewPolicy()
	summary.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em",
	)

	return &inputSanitizer{
		strict:  bluemonday.StrictPolicy(),
		summary: summary,
	}
}

// SanitizeText は患者入力テキストからすべてのHTMLタグを除去する。
func (s *inputSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.strict.Sanitize(raw))
}

// SanitizeSummary はお知らせフィードの要約HTMLをサニタイズする。
func (s *inputSanitizer) SanitizeSummary(rawHTML string) string {
	return strings.TrimSpace(s.summary.Sanitize(rawHTML))
}
