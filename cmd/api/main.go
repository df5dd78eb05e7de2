package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/fx-wallet/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "fx-wallet: %v\n", err)
		os.Exit(1)
	}
}
