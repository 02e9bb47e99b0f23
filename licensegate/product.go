package licensegate

import (
	"fmt"
	"strings"
)

// CheckinPolicy decides what happens when releasing a consumed entitlement fails.
// The checkout result is honored either way; the entitlement stays held until
// its own TTL elapses.
type CheckinPolicy int

const (
	// CheckinWarn logs a warning for a failed check-in.
	CheckinWarn CheckinPolicy = iota
	// CheckinIgnore discards a failed check-in silently.
	CheckinIgnore
)

func (p CheckinPolicy) String() string {
	switch p {
	case CheckinWarn:
		return "warn"
	case CheckinIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("CheckinPolicy(%d)", int(p))
	}
}

// ParseCheckinPolicy accepts "warn" or "ignore" (case-insensitive).
func ParseCheckinPolicy(s string) (CheckinPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn":
		return CheckinWarn, nil
	case "ignore":
		return CheckinIgnore, nil
	default:
		return 0, fmt.Errorf("unknown check-in policy %q", s)
	}
}

// Product identifies what is checked out from the authority and how the
// result is presented. Product variants differ only in these values.
type Product struct {
	SKU            string
	KeyFingerprint string
	CheckoutType   CheckoutType
	Entitlement    EntitlementData
	CheckinPolicy  CheckinPolicy

	// Name and Authority build the licensed label: "<Name> <version> (licensed through <Authority>)".
	Name      string
	Authority string
	// FallbackLabel is shown when unlicensed. Every "{version}" is replaced
	// with the build version.
	FallbackLabel string
	// InstallUnsupported is the message returned by Service.InstallLicense.
	InstallUnsupported string
}

// DefaultProduct is the AWS Marketplace listing: one datastore target,
// checked out provisionally and released straight away.
var DefaultProduct = Product{
	SKU:            "prod-4ur64cg6hhkw2",
	KeyFingerprint: "aws:294406891311:AWS/Marketplace:issuer-fingerprint",
	CheckoutType:   CheckoutProvisional,
	Entitlement: EntitlementData{
		Name:  "datastore_targets",
		Unit:  UnitCount,
		Value: "1",
	},
	CheckinPolicy:      CheckinWarn,
	Name:               "Liquibase Pro",
	Authority:          "AWS License Manager",
	FallbackLabel:      "Liquibase Open Source {version} by Liquibase",
	InstallUnsupported: "Installing licenses is not supported by the AWS License Service.",
}

// versionPlaceholder is substituted with the build version in FallbackLabel.
const versionPlaceholder = "{version}"

// withDefaults fills the empty checkout type and presentation fields from
// DefaultProduct. Identity fields (SKU, key fingerprint, entitlement) are kept.
func (p Product) withDefaults() Product {
	if p.CheckoutType == "" {
		p.CheckoutType = DefaultProduct.CheckoutType
	}
	if p.Name == "" {
		p.Name = DefaultProduct.Name
	}
	if p.Authority == "" {
		p.Authority = DefaultProduct.Authority
	}
	if p.FallbackLabel == "" {
		p.FallbackLabel = DefaultProduct.FallbackLabel
	}
	if p.InstallUnsupported == "" {
		p.InstallUnsupported = DefaultProduct.InstallUnsupported
	}
	return p
}

// checkoutRequest builds the request for one populate attempt.
func (p Product) checkoutRequest(clientToken string) CheckoutRequest {
	return CheckoutRequest{
		ProductSKU:     p.SKU,
		CheckoutType:   p.CheckoutType,
		KeyFingerprint: p.KeyFingerprint,
		Entitlements:   []EntitlementData{p.Entitlement},
		ClientToken:    clientToken,
	}
}

func (p Product) licensedLabel(version string) string {
	return fmt.Sprintf("%s %s (licensed through %s)", p.Name, version, p.Authority)
}

func (p Product) fallbackLabel(version string) string {
	return strings.ReplaceAll(p.FallbackLabel, versionPlaceholder, version)
}
