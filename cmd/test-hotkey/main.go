// Command test-hotkey is a manual test for the global start/stop hotkey.
// Run it, then press the key combination to see toggle events.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--keys ctrl,shift,h]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/notabot/internal/hotkey"
)

func main() {
	keysFlag := flag.String("keys", strings.Join(hotkey.DefaultKeys, ","), "comma-separated key combination")
	flag.Parse()

	keys := strings.Split(*keysFlag, ",")
	fmt.Printf("Listening for %s...\n", strings.Join(keys, "+"))
	fmt.Println("Press Ctrl+C to exit.")

	listener := hotkey.NewListener(keys)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	go func() {
		running := false
		for ev := range listener.Events() {
			if ev.Type != hotkey.EventToggle {
				continue
			}
			running = !running
			if running {
				fmt.Println(">>> START (beating)")
			} else {
				fmt.Println("<<< STOP  (idle)")
			}
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
