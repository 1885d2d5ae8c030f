// Command postmate はLinkedIn / X 投稿生成のバックエンドとCLIクライアントを起動する。
//
//	postmate [serve]                 APIサーバー
//	postmate migrate                 マイグレーション適用
//	postmate healthcheck             /health の確認（コンテナ用）
//	postmate login <user-id>         サインイン
//	postmate logout                  サインアウト
//	postmate keys <groq> <agno>      APIキーの保存
//	postmate generate <topic...>     投稿の生成とプレビュー
package main

import (
	"fmt"
	"os"

	"github.com/Vinay94278/postmate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "postmate: %v\n", err)
		os.Exit(1)
	}
}
