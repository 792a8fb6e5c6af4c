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
	"context"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sealmart/sealmart"
	"github.com/sealmart/sealmart/config"
	"github.com/sealmart/sealmart/database"
	"github.com/sealmart/sealmart/internal/notification"
	redis_db "github.com/sealmart/sealmart/internal/redis-db"
	"github.com/sealmart/sealmart/ledger"
	"github.com/sealmart/sealmart/storage"
)

// CLI wraps the root Cobra command.
type CLI struct {
	cmd *cobra.Command
}

// instance holds the assembled service and its configuration for the
// subcommands.
type instance struct {
	svc   *sealmart.Sealmart
	queue *sealmart.Queue
	cnf   *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and assembles the service before any
// subcommand executes.
func preRun(app *instance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		svc, queue, err := setupSealmart(cmd.Context(), cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.svc = svc
		app.queue = queue
		app.cnf = cnf
		return nil
	}
}

// setupSealmart assembles the fulfillment service from configuration: the
// Postgres datasource, the blob store, the settlement client, the shared
// Redis connection and the task queue. Every adapter is constructed here and
// injected, nothing self-initializes.
func setupSealmart(ctx context.Context, cfg *config.Configuration) (*sealmart.Sealmart, *sealmart.Queue, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting datasource: %v", err)
	}

	rds, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to redis: %v", err)
	}

	var store storage.Store
	if cfg.Storage.S3BucketName != "" {
		store, err = storage.NewS3Store(ctx, &cfg.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("error setting up blob store: %v", err)
		}
	} else {
		log.Println("Warning: no S3 bucket configured, using in-memory blob store")
		store = storage.NewMemory()
	}

	var settler ledger.Settler
	if cfg.Ledger.RpcUrl != "" {
		settler, err = ledger.NewClient(&cfg.Ledger)
		if err != nil {
			return nil, nil, fmt.Errorf("error setting up ledger client: %v", err)
		}
	} else {
		log.Println("Warning: no ledger RPC URL configured, using stub settler")
		settler = ledger.NewStub()
	}

	queue := sealmart.NewQueue(cfg)
	svc := sealmart.NewSealmart(sealmart.Deps{
		Datasource: db,
		Store:      store,
		Settler:    settler,
		Redis:      rds.Client(),
		Queue:      queue,
	})
	return svc, queue, nil
}

// NewCLI builds the command tree: workers, enqueue and migrate.
func NewCLI() *CLI {
	var configFile string
	app := &instance{}

	var rootCmd = &cobra.Command{
		Use:   "sealmart",
		Short: "Encrypted data asset fulfillment pipeline",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./sealmart.json", "Configuration file for the fulfillment service")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(enqueueCommands(app))
	rootCmd.AddCommand(migrateCommands(app))

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
