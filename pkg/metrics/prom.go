package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// ActiveUsers tracks the number of registered child profiles.
	ActiveUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pandapal_active_users_total",
			Help: "Total number of registered user profiles",
		},
	)

	// AIGateInFlight tracks how many AI requests currently hold a gate slot.
	AIGateInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pandapal_ai_gate_in_flight",
			Help: "Number of AI requests currently admitted by the request gate",
		},
	)

	// AIGateWaitSeconds observes time spent waiting for gate admission.
	AIGateWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pandapal_ai_gate_wait_seconds",
			Help:    "Time spent waiting for a free AI request gate slot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// AIRequests counts completed AI provider calls.
	AIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pandapal_ai_requests_total",
			Help: "Total number of AI provider requests",
		},
		[]string{"status"}, // status: ok, error
	)

	// TutorReplies counts tutor replies by outcome.
	TutorReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pandapal_tutor_replies_total",
			Help: "Total number of tutor replies",
		},
		[]string{"status"}, // status: ok, quota_exceeded, failed
	)

	// QuizAnswers counts quiz answers by correctness.
	QuizAnswers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pandapal_quiz_answers_total",
			Help: "Total number of quiz answers",
		},
		[]string{"result"}, // result: correct, wrong
	)

	// DatabaseErrors tracks database errors.
	DatabaseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pandapal_database_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation"},
	)

	// TelegramSendErrors tracks failed outgoing Telegram messages.
	TelegramSendErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pandapal_telegram_send_errors_total",
			Help: "Total number of failed Telegram sends",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ActiveUsers,
		AIGateInFlight,
		AIGateWaitSeconds,
		AIRequests,
		TutorReplies,
		QuizAnswers,
		DatabaseErrors,
		TelegramSendErrors,
	)
}

// MustServe exposes Prometheus metrics on the given address (e.g., ":8080").
// A trivial /healthz endpoint is served from the same mux for the hosting
// platform's liveness probe. The server runs in its own goroutine; startup
// failure is fatal. Returns the server so the caller can gracefully shutdown.
//
// Example usage:
//
//	srv := metrics.MustServe(":8080", log)
//	// later: srv.Shutdown(ctx)
func MustServe(addr string, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		log.Infow("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("metrics server failed", "err", err)
		}
	}()

	return srv
}

// UpdateActiveUsers updates the active users metric
func UpdateActiveUsers(count int64) {
	ActiveUsers.Set(float64(count))
}

// IncrementAIRequest increments the AI request counter for the given status.
func IncrementAIRequest(status string) {
	AIRequests.WithLabelValues(status).Inc()
}

// IncrementTutorReply increments the tutor reply counter for the given status.
func IncrementTutorReply(status string) {
	TutorReplies.WithLabelValues(status).Inc()
}

// IncrementQuizAnswer increments the quiz answer counter.
func IncrementQuizAnswer(correct bool) {
	result := "wrong"
	if correct {
		result = "correct"
	}
	QuizAnswers.WithLabelValues(result).Inc()
}

// IncrementDatabaseError increments the database error counter.
func IncrementDatabaseError(operation string) {
	DatabaseErrors.WithLabelValues(operation).Inc()
}
