package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/idgate/internal/database"
)

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// optString はnilポインタをNULLとしてSQLパラメータに渡す。
// COALESCE($n, column) による部分更新で使用する。
func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// optBool はnilポインタをNULLとしてSQLパラメータに渡す。
func optBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

// escapeLike はLIKE/ILIKEパターン中のワイルドカード文字をエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// wrapWriteError は一意制約違反をErrDuplicateに変換し、それ以外はメッセージを付けてラップする。
func wrapWriteError(op string, err error) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
