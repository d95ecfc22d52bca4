package auth

import (
	"errors"

	"github.com/hitoshi/idgate/internal/model"
)

// FailureKind はログイン試行・リクエスト認可の失敗種別。
// 値はリダイレクト応答のerrorパラメータとしてそのまま使われる。
type FailureKind string

const (
	KindMissingCredentials FailureKind = "missing_credentials"
	KindBadCredentials     FailureKind = "bad_credentials"
	KindExternalOnly       FailureKind = "external_only"
	KindAccountInactive    FailureKind = "account_inactive"
	KindMissingCode        FailureKind = "missing_code"
	KindAuthFailed         FailureKind = "authentication_failed"
	KindMissingEmail       FailureKind = "missing_email"
	KindDomainNotAllowed   FailureKind = "domain_not_allowed"
	KindNotFound           FailureKind = "not_found"
	KindForbidden          FailureKind = "forbidden"
	KindIdPUnavailable     FailureKind = "idp_unavailable"
	KindStorage            FailureKind = "storage_error"
)

// Failure は型付きの失敗結果。EmailはDomainNotAllowed等で表示用に保持する。
type Failure struct {
	Kind  FailureKind
	Email string
	Err   error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return string(f.Kind) + ": " + f.Err.Error()
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// AsFailure はerrから*Failureを取り出す。*Failureでない場合はStorageErrorとして包む。
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return fail(KindStorage, err)
}

// Outcome はログインフローの結果。成功時はTokenとAccount、失敗時はFailureのみを持つ。
type Outcome struct {
	Token   string
	Account *model.SafeAccount
	Failure *Failure
}

// OK は成功結果かどうかを返す。
func (o Outcome) OK() bool {
	return o.Failure == nil
}

func failed(f *Failure) Outcome {
	return Outcome{Failure: f}
}
