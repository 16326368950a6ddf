package group

import "time"

// Common test identities used across multiple test files.
const (
	testGroupID  = int64(778899)
	testSelfID   = int64(123456)
	testSelfNick = "tester"
	testOtherID  = int64(654321)
)

// Common test timeout durations used across multiple test files.
const (
	testSequenceTimeout = 30 * time.Millisecond
	testShortWait       = 50 * time.Millisecond
	testMinimalWait     = 5 * time.Millisecond
	testLongWait        = 2 * time.Second
)

// testSequenceBase is the first sequence id handed out by the mock transport.
const testSequenceBase = int32(1000)
