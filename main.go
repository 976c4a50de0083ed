package main

import "github.com/AkatukiSora/powerlog-replay/internal/cli"

var (
	version   = "dev"
	commit    = "local"
	buildDate = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, buildDate)
	cli.Execute()
}
