package handlers

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeAnswered = "answered"
	outcomeInvalid  = "invalid"
	outcomeFailed   = "failed"
)

// Metrics counts chat and feedback traffic.
type Metrics struct {
	ChatRequests *prometheus.CounterVec
	Feedback     *prometheus.CounterVec
}

// NewMetrics registers the counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "knowledgechat_chat_requests_total",
			Help: "Chat requests by outcome.",
		}, []string{"outcome"}),
		Feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "knowledgechat_feedback_total",
			Help: "Feedback records received by polarity.",
		}, []string{"polarity"}),
	}
	reg.MustRegister(m.ChatRequests, m.Feedback)
	for _, outcome := range []string{outcomeAnswered, outcomeInvalid, outcomeFailed} {
		m.ChatRequests.WithLabelValues(outcome)
	}
	m.Feedback.WithLabelValues("positive")
	m.Feedback.WithLabelValues("negative")
	return m
}

func (m *Metrics) chat(outcome string) {
	if m != nil {
		m.ChatRequests.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) feedback(positive bool) {
	if m == nil {
		return
	}
	polarity := "negative"
	if positive {
		polarity = "positive"
	}
	m.Feedback.WithLabelValues(polarity).Inc()
}
