package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with relay defaults", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "ghostrelay")
				So(manager.subsystem, ShouldEqual, "relay")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.constLabels["env"], ShouldEqual, "test")
			})

			Convey("And metrics should carry the namespace and constant labels", func() {
				manager.readingsProcessed.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_readings_processed_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "ghostrelay")
				So(manager.subsystem, ShouldEqual, "relay")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.constLabels, ShouldBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording reading metrics", func() {
			before := testutil.ToFloat64(globalManager.readingsProcessed)
			RecordReadingProcessed()
			RecordReadingRejected("invalid_signature")
			RecordReadingRejected("invalid_signature")
			RecordStageLatency("verify", 0.4)
			RecordGridReading("CLEAN")
			RecordHealth(90)
			RecordIntegrationTriggered()
			RecordDeviceRegistration()
			UpdateReplayGuardSize(12)

			Convey("Then counters should move", func() {
				So(testutil.ToFloat64(globalManager.readingsProcessed), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.readingsRejected.WithLabelValues("invalid_signature")), ShouldBeGreaterThanOrEqualTo, 2)
				So(testutil.ToFloat64(globalManager.replayGuardSize), ShouldEqual, 12)
			})
		})

		Convey("When recording cache metrics", func() {
			So(func() {
				RecordCacheHit()
				RecordCacheMiss()
				RecordCacheHydrationLatency(3.2)
				RecordCacheRollback()
				RecordCacheInvalidation()
				UpdateCacheEntries(42)
				UpdateCacheEntriesPerShard("shard_0", 10)
				UpdateCacheShardCount(4)
				RecordDeviceLockWait(0.01)
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.cacheEntries), ShouldEqual, 42)
			So(testutil.ToFloat64(globalManager.cacheEntriesPerShard.WithLabelValues("shard_0")), ShouldEqual, 10)
		})

		Convey("When recording backend and notifier metrics", func() {
			So(func() {
				RecordBackendLatency("update_ghost", 12)
				RecordBackendError("grid_status")
				RecordNotificationPublished("amqp")
				RecordNotificationDropped()
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.backendErrors.WithLabelValues("grid_status")), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("When recording queue and worker metrics", func() {
			So(func() {
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(1)
				UpdateWorkerCount(4)
				UpdateWorkerActiveCount(1)
				UpdateWorkerIdleCount(3)
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
		})

		Convey("When recording HTTP, error and system metrics", func() {
			So(func() {
				RecordHTTPRequest("/reading", "POST", "200")
				RecordHTTPRequestDuration("/reading", "POST", "200", 0.01)
				RecordErrorByComponent("http", "invalid_signature")
				RecordErrorByType("invalid_signature", "warning")
				RecordErrorByEndpoint("/reading", "POST", "invalid_signature")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordReadingProcessed()
		families, err := GetRegistry().Gather()

		Convey("Then it should expose relay metrics", func() {
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(names, ShouldContain, "ghostrelay_relay_readings_processed_total")
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent metric updates", t, func() {
		done := make(chan struct{})
		for i := 0; i < 8; i++ {
			go func() {
				defer func() { done <- struct{}{} }()
				for j := 0; j < 100; j++ {
					RecordCacheHit()
					RecordStageLatency("commit", float64(j))
					UpdateCacheEntries(j)
				}
			}()
		}
		for i := 0; i < 8; i++ {
			<-done
		}
		So(testutil.ToFloat64(globalManager.cacheHits), ShouldBeGreaterThanOrEqualTo, 800)
	})
}
