package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

const testMAC = "AA:BB:CC:DD:EE:FF"

type metricMsg struct {
	Device string
	Metric string
	Value  float64
}

type availabilityMsg struct {
	Device string
	Online bool
}

type recordingSink struct {
	mu           sync.Mutex
	metrics      []metricMsg
	states       []AggregatedState
	availability []availabilityMsg
}

func (s *recordingSink) PublishMetric(device, metric string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, metricMsg{device, metric, value})
}

func (s *recordingSink) PublishState(_ string, state AggregatedState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *recordingSink) PublishAvailability(device string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability = append(s.availability, availabilityMsg{device, online})
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics, s.states, s.availability = nil, nil, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T, mutate func(*Options)) (*Engine, *recordingSink, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts := Options{
		Devices:             map[string]string{"aa:bb:cc:dd:ee:ff": "charger"},
		Derive:              DefaultDeriveOptions(),
		AvailabilityTimeout: time.Minute,
		Now:                 clock.Now,
	}
	if nil != mutate {
		mutate(&opts)
	}
	sink := &recordingSink{}
	e, err := New(opts, sink, zap.NewNop().Sugar())
	require.NoError(t, err)
	return e, sink, clock
}

func frame(fields map[string]float64) Frame {
	return Frame{Identity: MustParseIdentity(testMAC), RSSI: -70, DeviceType: "SolarCharger", Fields: fields}
}

func TestEngineDedupWithinWindow(t *testing.T) {
	e, sink, clock := newTestEngine(t, func(o *Options) { o.ThrottleWindow = 5 * time.Second })

	first := e.HandleFrame(frame(map[string]float64{"voltage": 13.2, "current": 1.0}))
	require.Equal(t, OutcomeEmitted, first.Outcome)

	clock.Advance(2 * time.Second)
	second := e.HandleFrame(frame(map[string]float64{"voltage": 13.2, "current": 1.0}))
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	var power []float64
	for _, m := range sink.metrics {
		if "power_w" == m.Metric {
			power = append(power, m.Value)
		}
	}
	assert.Equal(t, []float64{13.2}, power)
	assert.Len(t, sink.states, 1)
	assert.EqualValues(t, 1, e.Counters().DedupSkipped.Load())
	assert.EqualValues(t, 2, e.Counters().FramesSeen.Load())
}

func TestEngineDedupWindowElapsed(t *testing.T) {
	e, sink, clock := newTestEngine(t, func(o *Options) { o.ThrottleWindow = 5 * time.Second })

	e.HandleFrame(frame(map[string]float64{"voltage": 13.2}))
	clock.Advance(6 * time.Second)
	res := e.HandleFrame(frame(map[string]float64{"voltage": 13.2}))

	assert.Equal(t, OutcomeEmitted, res.Outcome)
	assert.Len(t, sink.states, 2)
	assert.Zero(t, e.Counters().DedupSkipped.Load())
}

func TestEngineChangedSetNotDeduplicated(t *testing.T) {
	e, _, clock := newTestEngine(t, func(o *Options) { o.ThrottleWindow = 5 * time.Second })

	e.HandleFrame(frame(map[string]float64{"voltage": 13.2}))
	clock.Advance(time.Second)
	res := e.HandleFrame(frame(map[string]float64{"voltage": 13.3}))

	assert.Equal(t, OutcomeEmitted, res.Outcome)
}

func TestEngineThresholdSuppression(t *testing.T) {
	e, sink, clock := newTestEngine(t, func(o *Options) {
		o.Thresholds = map[string]float64{"voltage": 0.5}
		o.Derive.Enabled = false
	})

	e.HandleFrame(frame(map[string]float64{"voltage": 13.0}))
	clock.Advance(time.Second)
	res := e.HandleFrame(frame(map[string]float64{"voltage": 13.2}))
	assert.Equal(t, []string{"voltage"}, res.Decision.Suppressed)
	assert.Empty(t, res.Decision.Publish)
	// 聚合状态仍然包含原始值
	require.Len(t, sink.states, 2)
	assert.Equal(t, 13.2, sink.states[1].Values["voltage"])

	clock.Advance(time.Second)
	res = e.HandleFrame(frame(map[string]float64{"voltage": 13.6}))
	assert.Empty(t, res.Decision.Suppressed)
	assert.Equal(t, MetricSet{"voltage": 13.6}, res.Decision.Publish)

	assert.EqualValues(t, 1, e.Counters().MetricsSuppressed.Load())
	assert.EqualValues(t, 2, e.Counters().MetricsPublished.Load())
}

func TestEngineFirstFramePublishedInFull(t *testing.T) {
	e, sink, _ := newTestEngine(t, func(o *Options) {
		o.ThrottleWindow = time.Hour
		o.Thresholds = map[string]float64{"voltage": 100, "current": 100}
	})

	res := e.HandleFrame(frame(map[string]float64{"voltage": 12.5, "current": 2}))

	require.Equal(t, OutcomeEmitted, res.Outcome)
	want := []metricMsg{
		{"charger", "current", 2},
		{"charger", "power_w", 25},
		{"charger", "voltage", 12.5},
	}
	if diff := cmp.Diff(want, sink.metrics); "" != diff {
		t.Errorf("published metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineUnknownDevice(t *testing.T) {
	e, sink, _ := newTestEngine(t, nil)

	res := e.HandleFrame(Frame{Identity: MustParseIdentity("11:22:33:44:55:66"), Fields: map[string]float64{"v": 1}})
	e.HandleFrame(Frame{Identity: MustParseIdentity("11:22:33:44:55:66"), Fields: map[string]float64{"v": 1}})

	assert.Equal(t, OutcomeUnknownDevice, res.Outcome)
	assert.Empty(t, sink.metrics)
	snap := e.Snapshot()
	assert.Equal(t, 1, snap.UnknownDeviceCount)
	assert.Equal(t, 0, snap.KnownDeviceCount)
}

func TestEngineAvailability(t *testing.T) {
	e, sink, clock := newTestEngine(t, func(o *Options) { o.ThrottleWindow = time.Hour })

	e.HandleFrame(frame(map[string]float64{"voltage": 13}))
	assert.Equal(t, []availabilityMsg{{"charger", true}}, sink.availability)

	clock.Advance(time.Minute)
	assert.Empty(t, e.Sweep(clock.Now()), "exactly the timeout is not yet offline")

	clock.Advance(time.Second)
	assert.Equal(t, []string{"charger"}, e.Sweep(clock.Now()))
	assert.Empty(t, e.Sweep(clock.Now()), "repeated sweeps are idempotent")

	rec, ok := e.Device(MustParseIdentity(testMAC))
	require.True(t, ok)
	assert.Equal(t, AvailabilityOffline, rec.Availability)

	// 重复帧同样说明设备在线
	e.HandleFrame(frame(map[string]float64{"voltage": 13}))
	assert.Equal(t, []availabilityMsg{{"charger", true}, {"charger", false}, {"charger", true}}, sink.availability)
	assert.EqualValues(t, 1, e.Counters().DedupSkipped.Load())
}

func TestEngineCloseFlushesOffline(t *testing.T) {
	e, sink, _ := newTestEngine(t, nil)
	e.HandleFrame(frame(map[string]float64{"voltage": 13}))
	sink.reset()

	e.Close()
	e.Close()

	assert.Equal(t, []availabilityMsg{{"charger", false}}, sink.availability)
	assert.Equal(t, OutcomeClosed, e.HandleFrame(frame(map[string]float64{"voltage": 14})).Outcome)
}

func TestEngineSnapshot(t *testing.T) {
	e, _, clock := newTestEngine(t, nil)
	e.SetLoadStateFunc(func() string { return "ON" })
	e.HandleFrame(frame(map[string]float64{"voltage": 13}))
	e.HandleDecodeFailure(MustParseIdentity(testMAC), assert.AnError)
	e.Counters().LoadActions.Inc()
	clock.Advance(90 * time.Second)

	snap := e.Snapshot()
	assert.Equal(t, Snapshot{
		UptimeSeconds:    90,
		FramesSeen:       2,
		DecodeFailures:   1,
		MetricsPublished: 1,
		KnownDeviceCount: 1,
		LoadActions:      1,
		LoadState:        "ON",
	}, snap)
}

func TestEngineRecordsAreCopies(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	e.HandleFrame(frame(map[string]float64{"voltage": 13}))

	recs := e.Devices()
	require.Len(t, recs, 1)
	recs[0].Metrics["voltage"] = 99

	rec, _ := e.Device(MustParseIdentity(testMAC))
	assert.Equal(t, 13.0, rec.Metrics["voltage"])
}

func TestEngineInvalidDeviceTable(t *testing.T) {
	_, err := New(Options{Devices: map[string]string{"AA:BB": "short"}}, &recordingSink{}, zap.NewNop().Sugar())
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	_, err = New(Options{Devices: map[string]string{
		"aa:bb:cc:dd:ee:ff": "a",
		"AABBCCDDEEFF":      "b",
	}}, &recordingSink{}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestEngineRunAvailabilityStops(t *testing.T) {
	e, _, _ := newTestEngine(t, func(o *Options) { o.SweepInterval = time.Millisecond })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunAvailability(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunAvailability did not stop")
	}
}
