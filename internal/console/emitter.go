package console

import (
	"io"

	eventpkg "github.com/mrlm-net/eventbeacon/pkg/event"
)

// makeEmitter returns an event.Emitter and optionally a BufferingEmitter
// when outputChoice == "file".
func makeEmitter(outputChoice string, stdout io.Writer) (eventpkg.Emitter, *eventpkg.BufferingEmitter) {
	if outputChoice == "file" {
		be := eventpkg.NewBufferingEmitter()
		return be, be
	}
	return eventpkg.NewStdoutEmitter(stdout, true, true), nil
}
