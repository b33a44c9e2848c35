package core

import "github.com/shopspring/decimal"

// TransactionRequest describes a transaction submitted through a
// connected wallet. Value is denominated in ether.
type TransactionRequest struct {
	To    string
	Value decimal.Decimal
	Data  []byte
}
