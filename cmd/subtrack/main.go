// Command subtrack runs the subscription tracker: the HTTP API, the Telegram
// bot and the renewal reminder scheduler.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
