// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizer はIdPから受け取った氏名や画像URLを保存前に無害化する。
// 氏名はbluemondayのStrictPolicyでタグを全て除去し、
// 画像URLはValidateExternalURLを通過したものだけを残す。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxNameRunes は氏名系フィールドに保存する最大文字数。
const maxNameRunes = 100

// ProfileSanitizer はプロフィール値のサニタイザー。複数goroutineから安全に使える。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeName はHTMLタグを除去し、前後空白を取り除いた値を返す。
// エンティティは元の文字に戻す。値はJSONでのみ返され、HTMLとして描画されない。
func (s *ProfileSanitizer) SanitizeName(name string) string {
	if name == "" {
		return ""
	}
	cleaned := html.UnescapeString(s.policy.Sanitize(name))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if utf8.RuneCountInString(cleaned) > maxNameRunes {
		cleaned = string([]rune(cleaned)[:maxNameRunes])
	}
	return cleaned
}

// SanitizeAvatarURL は安全な外部httpsのURLのみを返し、それ以外は空文字列にする。
func (s *ProfileSanitizer) SanitizeAvatarURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if err := ValidateExternalURL(raw); err != nil {
		return ""
	}
	return raw
}
