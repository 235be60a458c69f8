package main

import (
	"os"

	"portal-keeper/cmd/portal-keeper/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
