package licensegate

import "time"

// CheckoutType selects how the authority grants the entitlement.
type CheckoutType string

const (
	// CheckoutProvisional grants a short-lived entitlement that is released on check-in.
	CheckoutProvisional CheckoutType = "PROVISIONAL"
	// CheckoutPerpetual grants an entitlement that is never auto-released.
	CheckoutPerpetual CheckoutType = "PERPETUAL"
)

// EntitlementUnit is the unit of an entitlement value.
type EntitlementUnit string

const (
	UnitCount EntitlementUnit = "Count"
	UnitNone  EntitlementUnit = "None"
)

// EntitlementData describes one consumable entitlement, e.g. "one datastore target".
type EntitlementData struct {
	Name  string          `json:"name"`
	Unit  EntitlementUnit `json:"unit"`
	Value string          `json:"value,omitempty"`
}

// CheckoutRequest is the request body for the /v1/checkout endpoint.
type CheckoutRequest struct {
	ProductSKU     string            `json:"product_sku"`
	CheckoutType   CheckoutType      `json:"checkout_type"`
	KeyFingerprint string            `json:"key_fingerprint"`
	Entitlements   []EntitlementData `json:"entitlements"`
	ClientToken    string            `json:"client_token"`
}

// EntitlementResponse is the authority's answer to a checkout.
// It is shared between every caller of the cache and must not be mutated.
type EntitlementResponse struct {
	Granted          bool              `json:"entitlements_allowed"`
	Expiration       *string           `json:"expiration,omitempty"`
	ConsumptionToken string            `json:"license_consumption_token"`
	Entitlements     []EntitlementData `json:"entitlements,omitempty"`
	IssuedAt         string            `json:"issued_at,omitempty"`
}

// CheckinRequest is the request body for the /v1/checkin endpoint.
type CheckinRequest struct {
	ConsumptionToken string `json:"license_consumption_token"`
}

// LicenseState is a snapshot derived from the cached checkout on every read.
type LicenseState struct {
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expires_at"`
	Label     string    `json:"label"`
	DaysLeft  int       `json:"days_left"`
}

// LicenseInfo mirrors the host application's license metadata object.
// IssuedTo is always empty for licenses granted by a remote authority.
type LicenseInfo struct {
	IssuedTo  string    `json:"issued_to,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Location identifies a license file the host application asked to install.
type Location struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// InstallResult reports the outcome of a license installation request.
type InstallResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// BuildInfo supplies the version embedded in display labels.
type BuildInfo struct {
	Version string
}
