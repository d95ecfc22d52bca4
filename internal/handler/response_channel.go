package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/idgate/internal/auth"
	"github.com/hitoshi/idgate/internal/middleware"
	"github.com/hitoshi/idgate/internal/model"
)

// ResponseChannel はログインフローの結果をクライアントに描画する。
// 認証エンジンは描画方式を知らず、ハンドラーがリクエストに応じて選んだ実装に結果を渡す。
type ResponseChannel interface {
	Success(w http.ResponseWriter, r *http.Request, token string, account *model.SafeAccount)
	Failure(w http.ResponseWriter, r *http.Request, f *auth.Failure)
}

// render はOutcomeをchへ振り分ける。
func render(w http.ResponseWriter, r *http.Request, ch ResponseChannel, o auth.Outcome) {
	if o.OK() {
		ch.Success(w, r, o.Token, o.Account)
		return
	}
	ch.Failure(w, r, o.Failure)
}

// failureView は失敗種別ごとのJSON表現。
type failureView struct {
	status   int
	message  string
	category string
	action   string
}

var failureViews = map[auth.FailureKind]failureView{
	auth.KindMissingCredentials: {http.StatusBadRequest, "メールアドレスとパスワードは必須です。", "validation", "メールアドレスとパスワードを入力してください。"},
	// 存在しないアカウントとパスワード誤りは同じ応答にする
	auth.KindNotFound:         {http.StatusUnauthorized, "メールアドレスまたはパスワードが正しくありません。", "auth", "入力内容を確認してください。"},
	auth.KindBadCredentials:   {http.StatusUnauthorized, "メールアドレスまたはパスワードが正しくありません。", "auth", "入力内容を確認してください。"},
	auth.KindExternalOnly:     {http.StatusUnauthorized, "このアカウントはシングルサインオン専用です。", "auth", "シングルサインオンでログインしてください。"},
	auth.KindAccountInactive:  {http.StatusUnauthorized, "アカウントは無効化されています。", "account", "管理者に連絡してください。"},
	auth.KindMissingCode:      {http.StatusBadRequest, "認可コードがありません。", "validation", "もう一度ログインをやり直してください。"},
	auth.KindMissingEmail:     {http.StatusBadRequest, "IdPからメールアドレスを取得できませんでした。", "idp", "IdPのアカウント設定を確認してください。"},
	auth.KindAuthFailed:       {http.StatusUnauthorized, "IdPでの認証に失敗しました。", "idp", "もう一度ログインをやり直してください。"},
	auth.KindDomainNotAllowed: {http.StatusForbidden, "このメールドメインはログインを許可されていません。", "domain", "許可されたドメインのアカウントでログインしてください。"},
	auth.KindForbidden:        {http.StatusForbidden, "この操作を行う権限がありません。", "auth", "管理者に権限の付与を依頼してください。"},
	auth.KindIdPUnavailable:   {http.StatusInternalServerError, "IdPに接続できませんでした。", "idp", "しばらく待ってから再度お試しください。"},
}

// authSuccessResponse はログイン成功時のJSONレスポンス。
type authSuccessResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Token   string             `json:"token"`
	User    *model.SafeAccount `json:"user"`
}

// authFailureResponse はログイン失敗時のJSONレスポンス。
// ドメイン拒否の場合は拒否したメールアドレスを含める。
type authFailureResponse struct {
	middleware.ErrorResponseBody
	Email string `json:"email,omitempty"`
}

// JSONChannel は結果をJSONで返す。APIクライアントおよびPOSTのコールバックで使う。
type JSONChannel struct {
	flow string
}

// NewJSONChannel はflow（auth.MethodPasswordまたはauth.MethodIdP）用のJSONChannelを生成する。
func NewJSONChannel(flow string) *JSONChannel {
	return &JSONChannel{flow: flow}
}

func (c *JSONChannel) Success(w http.ResponseWriter, _ *http.Request, token string, account *model.SafeAccount) {
	middleware.WriteJSON(w, http.StatusOK, authSuccessResponse{
		Success: true,
		Message: "ログインに成功しました。",
		Token:   token,
		User:    account,
	})
}

func (c *JSONChannel) Failure(w http.ResponseWriter, _ *http.Request, f *auth.Failure) {
	view, ok := failureViews[f.Kind]
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}

	status := view.status
	// IdP経由では認証自体は成功しているため、無効アカウントは権限不足として扱う
	if f.Kind == auth.KindAccountInactive && c.flow == auth.MethodIdP {
		status = http.StatusForbidden
	}

	body := authFailureResponse{
		ErrorResponseBody: middleware.ErrorResponseBody{
			Success:  false,
			Code:     strings.ToUpper(string(f.Kind)),
			Message:  view.message,
			Category: view.category,
			Action:   view.action,
		},
	}
	if f.Kind == auth.KindDomainNotAllowed {
		body.Email = f.Email
	}
	middleware.WriteJSON(w, status, body)
}

// RedirectChannel は結果をフロントエンドのコールバック画面へのリダイレクトで返す。
// ブラウザが直接アクセスするGETのコールバックで使う。
type RedirectChannel struct {
	callbackURL string
}

// NewRedirectChannel はfrontendURL配下の/auth/callbackへ誘導するRedirectChannelを生成する。
func NewRedirectChannel(frontendURL string) *RedirectChannel {
	return &RedirectChannel{callbackURL: strings.TrimRight(frontendURL, "/") + "/auth/callback"}
}

func (c *RedirectChannel) Success(w http.ResponseWriter, r *http.Request, token string, account *model.SafeAccount) {
	user, err := json.Marshal(account)
	if err != nil {
		slog.Error("failed to encode account for redirect", slog.String("error", err.Error()))
		c.redirect(w, r, url.Values{"error": {redirectErrorServer}})
		return
	}
	c.redirect(w, r, url.Values{
		"token": {token},
		"user":  {string(user)},
	})
}

func (c *RedirectChannel) Failure(w http.ResponseWriter, r *http.Request, f *auth.Failure) {
	q := url.Values{"error": {redirectErrorKind(f.Kind)}}
	if f.Kind == auth.KindDomainNotAllowed && f.Email != "" {
		q.Set("email", f.Email)
	}
	c.redirect(w, r, q)
}

func (c *RedirectChannel) redirect(w http.ResponseWriter, r *http.Request, q url.Values) {
	http.Redirect(w, r, c.callbackURL+"?"+q.Encode(), http.StatusFound)
}

const redirectErrorServer = "server_error"

// redirectErrorKind はerrorパラメータの値を返す。内部エラーの詳細は画面に出さない。
func redirectErrorKind(kind auth.FailureKind) string {
	if _, ok := failureViews[kind]; !ok {
		return redirectErrorServer
	}
	return string(kind)
}
