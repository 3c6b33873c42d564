package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

const namespace = "stationlink"

// Target labels for EventsRelayed.
const (
	TargetBroadcast = "broadcast"
	TargetStation   = "station"
)

// Live reports point-in-time hub state. The ws hub implements it.
type Live interface {
	Count() int
	Stations() map[string]int
}

// Metrics holds the relay counters. All methods are safe for concurrent use
// and a nil *Metrics ignores increments.
type Metrics struct {
	connections     atomic.Uint64
	authRejected    atomic.Uint64
	framesReceived  atomic.Uint64
	framesMalformed atomic.Uint64
	relayBroadcast  atomic.Uint64
	relayStation    atomic.Uint64
	slowClients     atomic.Uint64

	live atomic.Pointer[liveHolder]
}

type liveHolder struct{ Live }

// New returns zeroed counters.
func New() *Metrics { return &Metrics{} }

// SetLive attaches the source for gauge values.
func (m *Metrics) SetLive(l Live) { m.live.Store(&liveHolder{l}) }

func (m *Metrics) ConnectionAccepted() {
	if m != nil {
		m.connections.Add(1)
	}
}

func (m *Metrics) AuthRejected() {
	if m != nil {
		m.authRejected.Add(1)
	}
}

func (m *Metrics) FrameReceived() {
	if m != nil {
		m.framesReceived.Add(1)
	}
}

func (m *Metrics) FrameMalformed() {
	if m != nil {
		m.framesMalformed.Add(1)
	}
}

// EventRelayed counts one event fanned out to a broadcast or station group.
func (m *Metrics) EventRelayed(target string) {
	if m == nil {
		return
	}
	if target == TargetStation {
		m.relayStation.Add(1)
		return
	}
	m.relayBroadcast.Add(1)
}

func (m *Metrics) SlowClientDropped() {
	if m != nil {
		m.slowClients.Add(1)
	}
}

// Gather builds the metric families in name order.
func (m *Metrics) Gather() []*dto.MetricFamily {
	mfs := []*dto.MetricFamily{
		counter("ws_connections_total", "Websocket connections accepted after authentication.", m.connections.Load()),
		counter("ws_auth_rejected_total", "Websocket connections closed with 4401.", m.authRejected.Load()),
		counter("ws_frames_received_total", "Inbound websocket text frames.", m.framesReceived.Load()),
		counter("ws_frames_malformed_total", "Inbound frames dropped because they were not a JSON object.", m.framesMalformed.Load()),
		counter("ws_slow_clients_total", "Clients disconnected because their send queue was full.", m.slowClients.Load()),
		{
			Name: proto.String(namespace + "_events_relayed_total"),
			Help: proto.String("Events fanned out, by target group kind."),
			Type: dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{
				labelled(counterValue(m.relayBroadcast.Load()), "target", TargetBroadcast),
				labelled(counterValue(m.relayStation.Load()), "target", TargetStation),
			},
		},
	}

	if h := m.live.Load(); h != nil && h.Live != nil {
		mfs = append(mfs, gauge("ws_clients", "Websocket clients currently connected.", float64(h.Count())))

		stations := h.Stations()
		ids := make([]string, 0, len(stations))
		for id := range stations {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		perStation := &dto.MetricFamily{
			Name: proto.String(namespace + "_station_clients"),
			Help: proto.String("Clients joined to each station group."),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		for _, id := range ids {
			perStation.Metric = append(perStation.Metric,
				labelled(&dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(float64(stations[id]))}}, "station", id))
		}
		if len(perStation.Metric) > 0 {
			mfs = append(mfs, perStation)
		}
	}

	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })
	return mfs
}

// Handler serves GET /metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		for _, mf := range m.Gather() {
			if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
				// Headers are gone; nothing useful left to report.
				return
			}
		}
	})
}

func counter(name, help string, v uint64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(fmt.Sprintf("%s_%s", namespace, name)),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{counterValue(v)},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(fmt.Sprintf("%s_%s", namespace, name)),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func counterValue(v uint64) *dto.Metric {
	return &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(float64(v))}}
}

func labelled(m *dto.Metric, name, value string) *dto.Metric {
	m.Label = append(m.Label, &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)})
	return m
}
