package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandClient はクライアントモードで起動することを示す。
	CommandClient Command = "client"
	// CommandDevserver は開発用APIスタブサーバーモードで起動することを示す。
	CommandDevserver Command = "devserver"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandClientを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandClient
	}

	switch args[0] {
	case "client":
		return CommandClient
	case "devserver":
		return CommandDevserver
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandClient
	}
}
