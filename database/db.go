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

package database

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/sealmart/sealmart/config"
)

type Datasource struct {
	Conn *sql.DB
}

// NewDataSource opens a connection for the configured Postgres DSN. Callers
// own the lifecycle; there is no package-level instance.
func NewDataSource(configuration *config.Configuration) (*Datasource, error) {
	con, err := ConnectDB(configuration.DataSource.Dns)
	if err != nil {
		return nil, err
	}
	return &Datasource{Conn: con}, nil
}

func (d *Datasource) Close() error {
	return d.Conn.Close()
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	return db, nil
}

// Migrate creates the fulfillment schema. Tables are created in dependency
// order; reruns are no-ops.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS sealmart`); err != nil {
		return err
	}
	if err := createPurchaseTable(db); err != nil {
		return err
	}
	if err := createEscrowTable(db); err != nil {
		return err
	}
	if err := createAssetStagingTable(db); err != nil {
		return err
	}
	return createAuditTable(db)
}

func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// createPurchaseTable creates a PostgreSQL table for the PurchaseRequest struct
func createPurchaseTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sealmart.purchases (
			id SERIAL PRIMARY KEY,
			purchase_id TEXT NOT NULL UNIQUE,
			asset_id TEXT NOT NULL,
			buyer_address TEXT NOT NULL,
			seller_address TEXT NOT NULL,
			buyer_public_key TEXT NOT NULL,
			price NUMERIC NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			encrypted_blob_id TEXT,
			decryption_key TEXT,
			tx_digest TEXT,
			completed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

// createEscrowTable creates a PostgreSQL table for the EscrowRecord struct
func createEscrowTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sealmart.escrows (
			id SERIAL PRIMARY KEY,
			escrow_id TEXT NOT NULL UNIQUE,
			purchase_id TEXT NOT NULL REFERENCES sealmart.purchases(purchase_id),
			seller_address TEXT NOT NULL,
			buyer_address TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			status TEXT NOT NULL DEFAULT 'holding',
			tx_digest TEXT,
			released_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// createAssetStagingTable creates a PostgreSQL table for the AssetStagingRecord struct
func createAssetStagingTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sealmart.asset_staging (
			id SERIAL PRIMARY KEY,
			asset_id TEXT NOT NULL UNIQUE,
			content_id TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			seller_key TEXT,
			total_sales BIGINT NOT NULL DEFAULT 0,
			meta_data JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// createAuditTable creates the append-only audit log table
func createAuditTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sealmart.audit_log (
			id SERIAL PRIMARY KEY,
			tx_digest TEXT NOT NULL,
			tx_type TEXT NOT NULL,
			user_address TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
