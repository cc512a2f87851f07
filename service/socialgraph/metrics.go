package socialgraph

import (
	"time"

	"github.com/boz/go-throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xlivekit/xlivekit/model"
)

const metricsUpdateInterval = 5 * time.Second

var (
	graphedUsersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "xlivekit",
		Name:      "social_graph_users",
		Help:      "Number of users in the active social graph buffer.",
	}, []string{"local_user"})
	queuedInternalEventsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "xlivekit",
		Name:      "social_graph_queued_internal_events",
		Help:      "Number of internal events awaiting application.",
	}, []string{"local_user"})
)

// graphMetrics グラフ1つ分のゲージ更新機
//
// イベント適用のたびに呼ばれるためthrottleで更新頻度を抑えます。
type graphMetrics struct {
	users  prometheus.Gauge
	queued prometheus.Gauge
	driver throttle.ThrottleDriver
}

func newGraphMetrics(localUser uint64, collect func() (users, queued int)) *graphMetrics {
	m := &graphMetrics{
		users:  graphedUsersGauge.WithLabelValues(model.FormatXuid(localUser)),
		queued: queuedInternalEventsGauge.WithLabelValues(model.FormatXuid(localUser)),
	}
	m.driver = throttle.ThrottleFunc(metricsUpdateInterval, true, func() {
		users, queued := collect()
		m.users.Set(float64(users))
		m.queued.Set(float64(queued))
	})
	return m
}

func (m *graphMetrics) trigger() {
	m.driver.Trigger()
}

func (m *graphMetrics) stop() {
	m.driver.Stop()
}
