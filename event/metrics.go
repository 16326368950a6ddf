package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var listenerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupchat_event_listener_errors_total",
	Help: "Listener handler errors and panics by priority tier",
}, []string{"priority"})
