// Command idgate は認証ゲートウェイのエントリーポイント。
//
//	idgate [serve|migrate|healthcheck]
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/idgate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
