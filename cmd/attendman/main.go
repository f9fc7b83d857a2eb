// Command attendman はQRコード打刻による従業員の出退勤管理サーバー。
//
// サブコマンド:
//
//	serve                          HTTPサーバーを起動する（既定）
//	worker                         期限切れセッションを定期削除する
//	migrate                        データベースマイグレーションを適用する
//	create-admin <user> [password] 管理者ユーザーを作成する
//	healthcheck                    /health を確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/attendman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "attendman: %v\n", err)
		os.Exit(1)
	}
}
