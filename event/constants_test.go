package event

import "time"

const (
	testBotA = int64(10001)
	testBotB = int64(10002)

	testEventuallyWait = time.Second
	testPollInterval   = 5 * time.Millisecond
	testHandlerDelay   = 10 * time.Millisecond
	testBroadcasters   = 8
)
