// Command test-actuate is a manual test for the beat actuation. It waits 3
// seconds, then fires a few clicks or key taps paced at a fixed heart rate.
// Move the pointer somewhere harmless before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-actuate [--method click|key] [--key space] [--bpm 60] [--beats 5]
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/chaz8081/notabot/internal/actuate"
	"github.com/chaz8081/notabot/internal/rate"
)

func main() {
	method := flag.String("method", "click", "actuation method: click or key")
	button := flag.String("button", "left", "mouse button for click")
	key := flag.String("key", "space", "key for key taps")
	bpm := flag.Int("bpm", 60, "beats per minute")
	beats := flag.Int("beats", 5, "number of beats")
	flag.Parse()

	paced, clamped := rate.Clamp(*bpm)
	if clamped {
		fmt.Printf("bpm %d clamped to %d\n", *bpm, paced)
	}
	period := time.Minute / time.Duration(paced)

	fmt.Printf("Will fire %d %q actuations at %d bpm in 3 seconds...\n", *beats, *method, paced)
	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	c := actuate.NewClicker(*method, *button, *key)
	for i := range *beats {
		if err := c.Actuate(); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("♥ %d\n", i+1)
		time.Sleep(period)
	}

	fmt.Println("\nDone!")
}
