package group

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Send paths.
const (
	pathLiteral  = "literal"
	pathPromoted = "promoted"
	pathForward  = "forward"
	pathRetry    = "retry"
)

var (
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupchat_group_messages_sent_total",
		Help: "Group messages sent by path",
	}, []string{"path"})

	sendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupchat_group_send_failures_total",
		Help: "Failed group sends by reason",
	}, []string{"reason"})

	sequenceTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_sequence_timeouts_total",
		Help: "Sent messages whose sequence id was not resolved in time",
	})

	imageUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupchat_image_uploads_total",
		Help: "Group image uploads by result",
	}, []string{"result"})
)
