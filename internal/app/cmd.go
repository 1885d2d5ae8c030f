package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandLogin はセッションファイルにユーザーIDを書き込み、サインインする。
	CommandLogin Command = "login"
	// CommandLogout はセッションファイルを削除し、サインアウトする。
	CommandLogout Command = "logout"
	// CommandKeys はAPIキーを保存する。
	CommandKeys Command = "keys"
	// CommandGenerate はトピックから投稿を1回生成して表示する。
	CommandGenerate Command = "generate"
)

// IsClient はバックエンドではなくクライアント側で動くコマンドの場合にtrueを返す。
func (c Command) IsClient() bool {
	switch c {
	case CommandLogin, CommandLogout, CommandKeys, CommandGenerate:
		return true
	default:
		return false
	}
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "login":
		return CommandLogin
	case "logout":
		return CommandLogout
	case "keys":
		return CommandKeys
	case "generate":
		return CommandGenerate
	default:
		return CommandServe
	}
}
