package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// schema holds the two ledger tables.  The unique index on secret is
// what enforces "codes are never reused" regardless of status, and the
// (sku, status) index serves the availability queries.  Orders carry a
// random text primary key and a unique payment correlation id.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS gift_codes (
		id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		sku         VARCHAR(64)  NOT NULL,
		secret      VARCHAR(255) NOT NULL,
		status      VARCHAR(16)  NOT NULL DEFAULT 'available',
		reserved_by BIGINT       NULL,
		reserved_at DATETIME     NULL,
		sold_to     BIGINT       NULL,
		sold_at     DATETIME     NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_gift_codes_secret (secret),
		KEY idx_gift_codes_sku_status (sku, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS orders (
		id          CHAR(16)        NOT NULL,
		buyer_id    BIGINT          NOT NULL,
		sku         VARCHAR(64)     NOT NULL,
		price_cents BIGINT          NOT NULL,
		currency    CHAR(3)         NOT NULL,
		status      VARCHAR(16)     NOT NULL,
		code_id     BIGINT UNSIGNED NOT NULL,
		payment_ref CHAR(36)        NOT NULL,
		created_at  DATETIME        NOT NULL,
		paid_at     DATETIME        NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_orders_payment_ref (payment_ref),
		KEY idx_orders_buyer (buyer_id, created_at),
		KEY idx_orders_code_status (code_id, status),
		CONSTRAINT fk_orders_code FOREIGN KEY (code_id) REFERENCES gift_codes (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// InitSchema creates the ledger tables when they do not exist yet.  It
// is idempotent and runs at startup.
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
