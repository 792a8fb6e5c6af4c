/*
Copyright 2025 Sealmart Authors.

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

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/sealmart/sealmart/config"
	"github.com/sealmart/sealmart/database"
)

// migrateCommands creates the command for schema setup. There is only "up":
// the schema is additive and idempotent, every statement is CREATE IF NOT
// EXISTS.
func migrateCommands(_ *instance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "create the sealmart database schema",
	}

	cmd.AddCommand(migrateUpCommands())

	return cmd
}

func migrateUpCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			cnf, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error fetching config: %v", err)
			}

			db, err := database.ConnectDB(cnf.DataSource.Dns)
			if err != nil {
				log.Fatalf("Error connecting to database: %v", err)
			}
			defer db.Close()

			if err := database.Migrate(db); err != nil {
				log.Fatalf("Error creating schema: %v", err)
			}
			log.Println("Schema is up to date ✅")
		},
	}
	return cmd
}
