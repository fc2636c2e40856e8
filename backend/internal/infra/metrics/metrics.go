package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registerOnce        sync.Once
	promptTransitions   *prometheus.CounterVec
	counterSyncFailures *prometheus.CounterVec
	reviewDecisions     *prometheus.CounterVec
	viewFlushBatches    *prometheus.CounterVec
	viewFlushEntries    prometheus.Counter
)

const (
	namespaceMetrics = "promptshare"
)

// MustRegister 初始化 Prometheus 指标并注册 Go 运行时采样器，需在应用启动阶段调用一次。
func MustRegister() {
	registerOnce.Do(func() {
		promptTransitions = registerCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "lifecycle",
					Name:      "transitions_total",
					Help:      "Prompt 状态迁移次数，按目标状态统计。",
				},
				[]string{"to_status"},
			),
		)
		counterSyncFailures = registerCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "counters",
					Name:      "sync_failures_total",
					Help:      "分类或标签计数增量写入失败次数，按实体类型拆分。",
				},
				[]string{"entity"},
			),
		)
		reviewDecisions = registerCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "review",
					Name:      "decisions_total",
					Help:      "审核决定次数，按通过或驳回统计。",
				},
				[]string{"decision"},
			),
		)
		viewFlushBatches = registerCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "views",
					Name:      "flush_batches_total",
					Help:      "浏览量缓冲落库批次数，按执行结果分类。",
				},
				[]string{"result"},
			),
		)
		viewFlushEntries = registerCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "views",
					Name:      "flush_entries_total",
					Help:      "浏览量缓冲落库的累计条目数。",
				},
			),
		)

		registerRuntimeCollectors()
	})
}

// RecordPromptTransition 记录一次进入指定状态的迁移。
func RecordPromptTransition(toStatus string) {
	if promptTransitions == nil {
		return
	}
	promptTransitions.WithLabelValues(normalizeLabel(toStatus, "unknown")).Inc()
}

// RecordCounterSyncFailure 记录一次计数增量写入失败。
func RecordCounterSyncFailure(entity string) {
	if counterSyncFailures == nil {
		return
	}
	counterSyncFailures.WithLabelValues(normalizeLabel(entity, "unknown")).Inc()
}

// RecordReviewDecision 记录一次审核决定。
func RecordReviewDecision(decision string) {
	if reviewDecisions == nil {
		return
	}
	reviewDecisions.WithLabelValues(normalizeLabel(decision, "unknown")).Inc()
}

// RecordViewFlush 记录一次浏览量缓冲落库批次及其条目数。
func RecordViewFlush(result string, entries int) {
	if viewFlushBatches == nil {
		return
	}
	viewFlushBatches.WithLabelValues(normalizeLabel(result, "unknown")).Inc()
	if viewFlushEntries != nil && entries > 0 {
		viewFlushEntries.Add(float64(entries))
	}
}

func normalizeLabel(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func registerCounterVec(vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(vec); err != nil {
		if existing := alreadyRegisteredCounterVec(err); existing != nil {
			return existing
		}
		panic(err)
	}
	return vec
}

func registerCounter(counter prometheus.Counter) prometheus.Counter {
	if err := prometheus.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
		panic(err)
	}
	return counter
}

func registerRuntimeCollectors() {
	if err := prometheus.Register(collectors.NewGoCollector()); err != nil {
		if !isAlreadyRegistered(err) {
			panic(err)
		}
	}
	if err := prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		if !isAlreadyRegistered(err) {
			panic(err)
		}
	}
}

func alreadyRegisteredCounterVec(err error) *prometheus.CounterVec {
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing
		}
	}
	return nil
}

func isAlreadyRegistered(err error) bool {
	_, ok := err.(prometheus.AlreadyRegisteredError)
	return ok
}
