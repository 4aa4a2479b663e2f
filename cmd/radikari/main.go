package main

import (
	"fmt"
	"os"

	"github.com/valuin/radikari-chat-widget/cmd/radikari/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "radikari error:", err)
		os.Exit(1)
	}
}
