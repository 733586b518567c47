package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID           uuid.UUID
	Email        string
	Phone        string
	PasswordHash string
	Balance      decimal.Decimal
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransferRecord is append-only: one row per executed transfer, written in
// the same transaction as the balance mutation.
type TransferRecord struct {
	ID        uuid.UUID
	Sender    string
	Recipient string
	Amount    decimal.Decimal
	CreatedAt time.Time
}
