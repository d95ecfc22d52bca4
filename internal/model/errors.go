// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, account, domain, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodeInvalidRole             = "INVALID_ROLE"
	ErrCodeSelfModification        = "SELF_MODIFICATION"
	ErrCodeBootstrapAdminProtected = "BOOTSTRAP_ADMIN_PROTECTED"
	ErrCodeDomainNotFound          = "DOMAIN_NOT_FOUND"
	ErrCodeDuplicateDomain         = "DUPLICATE_DOMAIN"
	ErrCodeInvalidDomain           = "INVALID_DOMAIN"
	ErrCodePrimaryDomainProtected  = "PRIMARY_DOMAIN_PROTECTED"
	ErrCodeInvalidParameter        = "INVALID_PARAMETER"
	ErrCodeInvalidAPIKey           = "INVALID_API_KEY"
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeInvalidToken            = "INVALID_TOKEN"
	ErrCodeAccountInactive         = "ACCOUNT_INACTIVE"
	ErrCodeForbidden               = "FORBIDDEN"
	ErrCodeRateLimited             = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal                = "INTERNAL_ERROR"
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "account",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewInvalidRoleError は許可されていないロールが指定された場合のエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	names := make([]string, len(ValidRoles))
	for i, r := range ValidRoles {
		names[i] = string(r)
	}
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", role),
		Category: "validation",
		Action:   fmt.Sprintf("ロールには %s のいずれかを指定してください。", strings.Join(names, ", ")),
	}
}

// NewSelfModificationError は自分自身のアカウントを無効化・ロール変更しようとした場合のエラーを生成する。
func NewSelfModificationError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfModification,
		Message:  "自分自身のアカウントの状態やロールは変更できません。",
		Category: "account",
		Action:   "別の管理者に依頼してください。",
	}
}

// NewBootstrapAdminProtectedError は初期管理者アカウントを変更しようとした場合のエラーを生成する。
func NewBootstrapAdminProtectedError() *APIError {
	return &APIError{
		Code:     ErrCodeBootstrapAdminProtected,
		Message:  "初期管理者アカウントは無効化・ロール変更できません。",
		Category: "account",
		Action:   "初期管理者以外のアカウントを選択してください。",
	}
}

// NewDomainNotFoundError は許可ドメインが見つからない場合のエラーを生成する。
func NewDomainNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeDomainNotFound,
		Message:  "ドメインが見つかりません。",
		Category: "domain",
		Action:   "ドメインIDを確認してください。",
	}
}

// NewDuplicateDomainError は既に登録済みのドメインを登録しようとした場合のエラーを生成する。
func NewDuplicateDomainError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateDomain,
		Message:  fmt.Sprintf("ドメインは既に登録されています: %s", name),
		Category: "domain",
		Action:   "ドメイン一覧から該当ドメインを確認してください。",
	}
}

// NewInvalidDomainError はドメイン名が不正な場合のエラーを生成する。
func NewInvalidDomainError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDomain,
		Message:  fmt.Sprintf("無効なドメイン名です: %s", reason),
		Category: "validation",
		Action:   "example.com のような形式でドメイン名を入力してください。",
	}
}

// NewPrimaryDomainProtectedError は主ドメインを削除・無効化しようとした場合のエラーを生成する。
func NewPrimaryDomainProtectedError() *APIError {
	return &APIError{
		Code:     ErrCodePrimaryDomainProtected,
		Message:  "主ドメインは削除・無効化できません。",
		Category: "domain",
		Action:   "主ドメイン以外のドメインを選択してください。",
	}
}

// NewInvalidParameterError はリクエストパラメータが不正な場合のエラーを生成する。
func NewInvalidParameterError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParameter,
		Message:  fmt.Sprintf("パラメータが不正です: %s", name),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewInvalidAPIKeyError はサービス用APIキーが無い・一致しない場合のエラーを生成する。
func NewInvalidAPIKeyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAPIKey,
		Message:  "APIキーが無効か指定されていません。",
		Category: "auth",
		Action:   "X-API-Keyヘッダーに発行済みのAPIキーを指定してください。",
	}
}

// NewUnauthorizedError はBearerトークンが指定されていない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証トークンが見つかりません。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewInvalidTokenError はトークンの署名不正・期限切れの場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "認証トークンが無効か期限切れです。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewAccountInactiveError はアカウントが無効化されている場合のエラーを生成する。
func NewAccountInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountInactive,
		Message:  "アカウントは無効化されています。",
		Category: "account",
		Action:   "管理者に連絡してください。",
	}
}

// NewForbiddenError は管理者権限が必要な操作を一般ユーザーが行った場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewInvalidRequestError はリクエストボディを解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}
