package groupchat

import "time"

const (
	testSelfID       = int64(10001)
	testSelfNick     = "bot"
	testGroupID      = int64(4455)
	testOtherGroupID = int64(7788)
	testGroupName    = "Programming Chat"
	testToken        = "secret-token"
	testSequenceBase = int32(500)

	testSequenceTimeout = 200 * time.Millisecond
	testEventualWait    = 2 * time.Second
	testPollInterval    = 5 * time.Millisecond
)
