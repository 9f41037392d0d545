package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_active_connections",
		Help: "Active websocket connections",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_users",
		Help: "Users currently bound in the presence registry",
	})
	MessagesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_created_total",
		Help: "Messages persisted, by initial status",
	}, []string{"status"})
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_transitions_total",
		Help: "Message status transitions applied, by target status",
	}, []string{"status"})
	BacklogFlushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_backlog_flushed_total",
		Help: "Queued messages delivered on join",
	})
	EmitFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_emit_failures_total",
		Help: "Outbound events that could not be queued to a connection",
	})
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(Connections, OnlineUsers, MessagesCreated, Transitions, BacklogFlushed, EmitFailures)
	})
}
