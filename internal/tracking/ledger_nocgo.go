//go:build !cgo

package tracking

import (
	"context"
	"time"
)

// IsCgoEnabled indicates whether the SQLite ledger is available
const IsCgoEnabled = false

// Ledger is inert without cgo; every operation reports ErrCgoDisabled
type Ledger struct{}

// Open always fails without cgo
func Open(string) (*Ledger, error) {
	return nil, ErrCgoDisabled
}

func (l *Ledger) Record(context.Context, string, Result, string, time.Time) error {
	return ErrCgoDisabled
}

func (l *Ledger) Get(context.Context, string) (*SourceHealth, error) {
	return nil, ErrCgoDisabled
}

func (l *Ledger) All(context.Context) ([]SourceHealth, error) {
	return nil, ErrCgoDisabled
}

func (l *Ledger) Reset(context.Context, string) error {
	return ErrCgoDisabled
}

func (l *Ledger) Close() error { return nil }
