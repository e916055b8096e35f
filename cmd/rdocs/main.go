package main

import (
	"os"

	"github.com/hashicorp-forge/rdocs/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
