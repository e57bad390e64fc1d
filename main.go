package main

import (
	"embed"
	"io/fs"
	"os"

	"github.com/meshlab/meshviz/cmd"
)

//go:embed web
var webFS embed.FS

func main() {
	assets, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	cmd.SetWebFS(assets)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
