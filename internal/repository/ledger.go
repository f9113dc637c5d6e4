package repository

import "database/sql"

// Ledger bundles the MySQL repositories that together make up the seat
// ledger: seat status, holds, queue entries and orders.  The service
// layer depends on it through narrow interfaces.
type Ledger struct {
	*SeatRepo
	*HoldRepo
	*QueueEntryRepo
	*OrderRepo
}

// NewLedger wires every repository to the same connection pool.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{
		SeatRepo:       NewSeatRepo(db),
		HoldRepo:       NewHoldRepo(db),
		QueueEntryRepo: NewQueueEntryRepo(db),
		OrderRepo:      NewOrderRepo(db),
	}
}
