package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the ledger tables.  Statements run one at a time since
// the driver rejects multi-statement strings by default.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS seats (
		id          VARCHAR(64)  NOT NULL PRIMARY KEY,
		event_id    VARCHAR(64)  NOT NULL,
		seat_number VARCHAR(32)  NOT NULL,
		price_cents INT UNSIGNED NOT NULL,
		status      ENUM('AVAILABLE','IN_QUEUE','RESERVED','SOLD') NOT NULL DEFAULT 'AVAILABLE',
		created_at  DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at  DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_seats_event_number (event_id, seat_number),
		KEY idx_seats_event_status (event_id, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS carts (
		id         VARCHAR(64) NOT NULL PRIMARY KEY,
		user_id    VARCHAR(64) NOT NULL,
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_carts_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	// one hold per seat
	`CREATE TABLE IF NOT EXISTS cart_items (
		id             VARCHAR(64) NOT NULL PRIMARY KEY,
		cart_id        VARCHAR(64) NOT NULL,
		seat_id        VARCHAR(64) NOT NULL,
		reserved_until DATETIME(3) NOT NULL,
		created_at     DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_cart_items_seat (seat_id),
		KEY idx_cart_items_until (reserved_until),
		CONSTRAINT fk_cart_items_cart FOREIGN KEY (cart_id) REFERENCES carts (id) ON DELETE CASCADE,
		CONSTRAINT fk_cart_items_seat FOREIGN KEY (seat_id) REFERENCES seats (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS queue_entries (
		id         VARCHAR(64) NOT NULL PRIMARY KEY,
		user_id    VARCHAR(64) NOT NULL,
		seat_id    VARCHAR(64) NOT NULL,
		position   BIGINT      NOT NULL,
		status     ENUM('WAITING','PROCESSING','COMPLETED','FAILED') NOT NULL DEFAULT 'WAITING',
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_queue_entries_seat_position (seat_id, position),
		KEY idx_queue_entries_user (user_id),
		CONSTRAINT fk_queue_entries_seat FOREIGN KEY (seat_id) REFERENCES seats (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS orders (
		id                 VARCHAR(64)  NOT NULL PRIMARY KEY,
		user_id            VARCHAR(64)  NOT NULL,
		status             ENUM('PENDING','PAID') NOT NULL DEFAULT 'PENDING',
		total_amount_cents INT UNSIGNED NOT NULL,
		created_at         DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		KEY idx_orders_user_created (user_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS order_items (
		id          VARCHAR(64)  NOT NULL PRIMARY KEY,
		order_id    VARCHAR(64)  NOT NULL,
		seat_id     VARCHAR(64)  NOT NULL,
		price_cents INT UNSIGNED NOT NULL,
		UNIQUE KEY uq_order_items_seat (seat_id),
		CONSTRAINT fk_order_items_order FOREIGN KEY (order_id) REFERENCES orders (id) ON DELETE CASCADE,
		CONSTRAINT fk_order_items_seat FOREIGN KEY (seat_id) REFERENCES seats (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing ledger tables.  It is safe to run on every
// start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
