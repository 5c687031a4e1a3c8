// Command dispatchdemo runs a simulated host loop: producer goroutines hand
// work to the main context, routines patrol until their owner is destroyed,
// and dispatcher state is served over HTTP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
