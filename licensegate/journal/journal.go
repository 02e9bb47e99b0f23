// Package journal records license checkout attempts so operators can see
// which nodes consumed entitlements and which check-ins were left dangling.
package journal

import (
	"context"
	"regexp"
	"time"
)

// validIdentifier matches safe table and collection names.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Entry is one checkout round trip against the license authority.
type Entry struct {
	ClientToken      string    `json:"client_token" bson:"client_token"`
	ConsumptionToken string    `json:"consumption_token,omitempty" bson:"consumption_token"`
	ProductSKU       string    `json:"product_sku" bson:"product_sku"`
	Node             string    `json:"node,omitempty" bson:"node"`
	Granted          bool      `json:"granted" bson:"granted"`
	Expiration       string    `json:"expiration,omitempty" bson:"expiration"`
	Error            string    `json:"error,omitempty" bson:"error"`
	CheckinError     string    `json:"checkin_error,omitempty" bson:"checkin_error"`
	CheckedOutAt     time.Time `json:"checked_out_at" bson:"checked_out_at"`
}

// Dangling reports whether the entitlement may still be held by the authority.
func (e Entry) Dangling() bool {
	return e.ConsumptionToken != "" && e.CheckinError != ""
}

// Journal stores checkout entries.
type Journal interface {
	// Record stores an entry. Entries are keyed by ClientToken; recording the
	// same token twice overwrites the earlier entry.
	Record(ctx context.Context, e Entry) error

	// List returns the most recent entries for a product SKU, newest first.
	// A limit <= 0 returns everything.
	List(ctx context.Context, productSKU string, limit int) ([]Entry, error)

	// Prune removes entries older than olderThan and returns how many were removed.
	Prune(ctx context.Context, productSKU string, olderThan time.Duration) (int, error)

	// Close releases any resources held by the journal.
	Close(ctx context.Context) error
}
