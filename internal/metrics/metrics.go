// Package metrics 注册MES业务指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StepTransitions 工步迁移计数，按动作与结果分
	StepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mes",
		Name:      "step_transitions_total",
		Help:      "Run step state transitions by action and outcome.",
	}, []string{"action", "outcome"})

	// MaterialShortages 发料缺料计数
	MaterialShortages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mes",
		Name:      "material_shortages_total",
		Help:      "Material issuance requests rejected for shortage.",
	})

	// ActiveRuns 活跃运行数
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mes",
		Name:      "active_runs",
		Help:      "Number of currently active production runs.",
	})

	// RunsWithRequiredSkips 存在必做工步被跳过的活跃运行数
	RunsWithRequiredSkips = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mes",
		Name:      "runs_with_required_skips",
		Help:      "Active runs with at least one required step skipped.",
	})
)
