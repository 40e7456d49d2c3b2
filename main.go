package main

import (
	"os"

	"github.com/lvcoi/ytdl-playlist/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
