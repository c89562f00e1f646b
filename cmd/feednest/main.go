// feednest はサーバーレンダリング型RSSリーダーのバックエンドサーバー。
//
// サブコマンド:
//
//	serve       APIサーバーを起動する（デフォルト）
//	migrate     データベースマイグレーションを実行する
//	healthcheck ローカルサーバーのヘルスチェックを行う
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/feednest/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
