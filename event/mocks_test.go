package event

import (
	"io"

	"github.com/sirupsen/logrus"
)

// testEvent is a plain event.
type testEvent struct {
	name string
}

// cancellableTestEvent can be cancelled by listeners.
type cancellableTestEvent struct {
	CancellableEvent
	name string
}

// familyEvent is implemented by every event of the test family.
type familyEvent interface {
	Family() string
}

type joinEvent struct{ member string }

func (e *joinEvent) Family() string { return "membership" }

type leaveEvent struct{ member string }

func (e *leaveEvent) Family() string { return "membership" }

// botTestEvent belongs to a bot account.
type botTestEvent struct {
	bot  int64
	text string
}

func (e *botTestEvent) BotID() int64 { return e.bot }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
