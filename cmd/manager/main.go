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

/*
The manager command is the entrypoint of the logical replication subscriber.
*/
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cratedb/logical-replication/internal/cmd/manager/subscriber"

	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

func main() {
	cmd := &cobra.Command{
		Use:          "manager [cmd]",
		SilenceUsage: true,
	}

	cmd.AddCommand(subscriber.NewCmd())

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
