package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// faqMatches counts bot replies by the FAQ category that produced them
	// ("fallback" when no rule matched).
	faqMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faq_matches_total",
			Help: "Bot replies by matched FAQ category.",
		},
		[]string{"category"},
	)

	// botReplies counts scheduled replies by outcome: delivered, or discarded
	// because the session was cleared or reset while the reply was pending.
	botReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_replies_total",
			Help: "Scheduled bot replies by outcome.",
		},
		[]string{"outcome"},
	)

	// corruptSlots counts snapshot slots discarded on import.
	corruptSlots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_corrupt_slots_total",
			Help: "Imported snapshot slots discarded because their JSON was corrupt.",
		},
		[]string{"slot"},
	)
)

func init() {
	prometheus.MustRegister(faqMatches, botReplies, corruptSlots)
}
