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

// Package run implements the "subscriber run" subcommand: it wires up
// the Supervisor, its collaborators and the controller-runtime
// reconcilers into one long-running manager process. It is grounded on
// internal/cmd/manager/instance/run/cmd.go's composition style:
// a cobra RunE building a ctrl.Manager, registering reconcilers and
// Runnables on it, then blocking on mgr.Start(ctx).
package run

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client/config"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	internalcontroller "github.com/cratedb/logical-replication/internal/controller"
	"github.com/cratedb/logical-replication/internal/logicalreplication/election"
	"github.com/cratedb/logical-replication/internal/logicalreplication/localcatalog"
	"github.com/cratedb/logical-replication/internal/logicalreplication/metadatatracker"
	"github.com/cratedb/logical-replication/internal/logicalreplication/remotecluster"
	"github.com/cratedb/logical-replication/internal/logicalreplication/restore"
	"github.com/cratedb/logical-replication/internal/logicalreplication/snapshotrepo"
	"github.com/cratedb/logical-replication/internal/logicalreplication/statemachine"
	"github.com/cratedb/logical-replication/internal/logicalreplication/store"
	"github.com/cratedb/logical-replication/internal/logicalreplication/supervisor"
	"github.com/cratedb/logical-replication/pkg/management"
	"github.com/cratedb/logical-replication/pkg/management/log"
	"github.com/cratedb/logical-replication/pkg/multicache"
)

// NewCmd creates the "subscriber run" subcommand.
func NewCmd() *cobra.Command {
	var namespace string
	var podName string
	var leaseName string
	var trackerSchedule string
	var localClusterDSN string

	cmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Run the logical replication subscriber controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := log.IntoContext(cmd.Context(), log.GetLogger())
			return runSubCommand(ctx, subCommandConfig{
				namespace:       namespace,
				podName:         podName,
				leaseName:       leaseName,
				trackerSchedule: trackerSchedule,
				localClusterDSN: localClusterDSN,
			})
		},
	}

	cmd.Flags().StringVar(&namespace, "namespace", os.Getenv("NAMESPACE"),
		"The namespace of the Subscriptions and Publications this process reconciles")
	cmd.Flags().StringVar(&podName, "pod-name", os.Getenv("POD_NAME"),
		"The name of this pod, used as the master-election lease identity")
	cmd.Flags().StringVar(&leaseName, "lease-name", "logical-replication-master",
		"The name of the Lease used to elect the master node")
	cmd.Flags().StringVar(&trackerSchedule, "tracker-schedule", "@every 30s",
		"robfig/cron expression controlling how often each tracked subscription is polled")
	cmd.Flags().StringVar(&localClusterDSN, "local-cluster-dsn", os.Getenv("LOCAL_CLUSTER_DSN"),
		"PostgreSQL-wire DSN of the local CrateDB cluster restores are submitted against")

	return cmd
}

type subCommandConfig struct {
	namespace       string
	podName         string
	leaseName       string
	trackerSchedule string
	localClusterDSN string
}

func runSubCommand(ctx context.Context, cfg subCommandConfig) error {
	setupLog := log.WithName("setup")
	setupLog.Info("starting logical replication subscriber")

	restConfig := config.GetConfigOrDie()

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:   management.Scheme,
		NewCache: multicache.DelegatingMultiNamespacedCacheBuilder([]string{cfg.namespace}, cfg.namespace),
	})
	if err != nil {
		setupLog.Error(err, "unable to set up controller manager")
		return err
	}

	localConn, err := pgx.Connect(ctx, cfg.localClusterDSN)
	if err != nil {
		setupLog.Error(err, "unable to connect to the local cluster")
		return err
	}

	kubeClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		setupLog.Error(err, "unable to build the kubernetes clientset for master election")
		return err
	}

	sm := statemachine.New(mgr.GetClient(), cfg.namespace)
	registry := remotecluster.New(nil)
	masterWatcher := election.NewLeaseWatcher(kubeClient, cfg.namespace, cfg.leaseName, cfg.podName)

	subscriptionStore := store.New(nil)

	localExecutor := restore.NewLocalExecutor(localConn)
	coordinator := restore.New(
		localExecutor,
		restore.NewPollingCompletionWatcher(localExecutor.Lookup),
		sm,
	)
	catalog := localcatalog.New(localConn)

	tracker, err := metadatatracker.New(registry, sm, subscriptionStore, masterWatcher.IsMaster, cfg.trackerSchedule,
		catalog, coordinator)
	if err != nil {
		setupLog.Error(err, "invalid tracker schedule")
		return err
	}

	super := supervisor.New(registry, subscriptionStore, tracker, coordinator, sm, masterWatcher, catalog)
	subscriptionStore.SetListener(super)
	super.SetRepositoriesService(snapshotrepo.New(localConn))

	if err = (&internalcontroller.SubscriptionReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
		Store:  subscriptionStore,
	}).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create subscription controller")
		return err
	}

	if err = (&internalcontroller.PublicationReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
		Store:  subscriptionStore,
	}).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create publication controller")
		return err
	}

	if err := mgr.Add(manager.RunnableFunc(func(ctx context.Context) error {
		masterWatcher.Run(ctx, func() {
			super.OnMasterChange(ctx, true)
		}, func() {
			super.OnMasterChange(ctx, false)
		})
		return nil
	})); err != nil {
		setupLog.Error(err, "unable to register master election runnable")
		return err
	}

	setupLog.Info("starting controller-runtime manager")
	if err := mgr.Start(ctx); err != nil {
		setupLog.Error(err, "unable to run controller-runtime manager")
		return fmt.Errorf("manager exited: %w", err)
	}

	return nil
}
