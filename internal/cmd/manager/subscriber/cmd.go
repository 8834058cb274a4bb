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

// Package subscriber implements the "subscriber" subcommand tree: the
// process that reconciles Subscription/Publication CRDs and drives
// logical replication from a publisher CrateDB cluster.
package subscriber

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cratedb/logical-replication/internal/cmd/manager/subscriber/run"
)

// NewCmd creates the "subscriber" command.
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriber",
		Short: "Subscriber management subfeatures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("missing subcommand")
		},
	}

	cmd.AddCommand(run.NewCmd())

	return cmd
}
