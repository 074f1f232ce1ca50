package safego

import (
	"log"
	"runtime/debug"
)

// Go runs fn on a new goroutine. A panic is written to the logger before the
// process dies - the curses UI owns the terminal, so a bare panic trace to
// stderr would be lost.
func Go(logger *log.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("PANIC: %v\n%s", r, debug.Stack())
				panic(r)
			}
		}()
		fn()
	}()
}
