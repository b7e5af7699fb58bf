// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ingestwatch_channel_state",
		Help: "Progress channel connection state (connecting/open/closed, active=1)",
	}, []string{"state"})

	ChannelReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestwatch_channel_reconnect_attempts_total",
		Help: "Progress channel reconnect attempts by result",
	}, []string{"result"})

	ChannelExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingestwatch_channel_retry_budget_exhausted_total",
		Help: "Number of times the progress channel gave up reconnecting",
	})

	StreamMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestwatch_stream_messages_total",
		Help: "Progress stream messages by outcome (delivered, malformed, unknown_stage, unknown_session, late)",
	}, []string{"outcome"})
)

var channelStates = []string{"connecting", "open", "closed"}

// SetChannelState records the active progress channel state.
func SetChannelState(state string) {
	for _, s := range channelStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		channelState.WithLabelValues(s).Set(value)
	}
}

// IncReconnect records a reconnect attempt outcome ("success", "failure" or
// "unstable" for an open that dropped before proving itself).
func IncReconnect(result string) {
	ChannelReconnectsTotal.WithLabelValues(result).Inc()
}

// IncStreamMessage records how an inbound stream message was handled.
func IncStreamMessage(outcome string) {
	StreamMessagesTotal.WithLabelValues(outcome).Inc()
}
