// Command viegoctl runs one-off operations against the transaction controls
// sandbox and the reminder store: dispatching due reminders, discovering a
// card's controls, simulating purchases and reading alert history.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
