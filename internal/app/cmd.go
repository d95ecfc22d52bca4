package app

// Command はidgateバイナリのサブコマンド。
type Command string

const (
	// CommandServe はマイグレーションと初期データ投入の後にゲートウェイを起動する。
	CommandServe Command = "serve"
	// CommandMigrate はマイグレーションだけを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のゲートウェイの/healthを確認する。
	// curlを持たないdistrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数なしや未知の値はserveとして扱い、2番目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
