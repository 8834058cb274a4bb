/*
Copyright The CloudNativePG Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics holds the package-level prometheus.Collectors this
// process registers against controller-runtime's default registry, the
// same registry the teacher's own manager exposes on its metrics
// server. Grounded on CNPG's own metrics packages (e.g.
// pkg/reconciler/backup/volumesnapshot/metrics), which expose
// package-level CounterVec/GaugeVec variables plus a handful of Record*
// helpers instead of threading a *prometheus.Registry through every
// collaborator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// RestoreOutcomeTotal counts terminal restore.Coordinator.Restore
	// outcomes by subscription and result (synchronized, partial, failed,
	// lost_master).
	RestoreOutcomeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "logical_replication",
			Name:      "restore_outcome_total",
			Help:      "Count of initial snapshot restore outcomes by subscription and result.",
		},
		[]string{"subscription", "outcome"},
	)

	// MasterStatus reports whether this node currently holds the
	// replication master role gating MetadataTracker ticking.
	MasterStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "logical_replication",
			Name:      "master_status",
			Help:      "1 if this node currently holds the replication master role, 0 otherwise.",
		},
	)
)

func init() {
	ctrlmetrics.Registry.MustRegister(RestoreOutcomeTotal, MasterStatus)
}
