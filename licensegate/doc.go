// Package licensegate decides whether a protected feature set may run by
// checking out an entitlement from a remote license authority.
//
// Install with:
//
//	go get github.com/CloudNativeWorks/cnw-license-gate/licensegate
//
// The checkout is performed lazily by a CheckoutCache: the first caller
// triggers one checkout followed by an immediate check-in, concurrent callers
// wait for it, and the outcome (granted, denied or failed) is served to
// everyone until Reset. A Service turns that outcome into the answers a host
// application needs: validity, a display label and the expiration date.
//
// # Quick Start
//
//	client := licensegate.NewOnlineClient("https://license.example.com", "your-api-key")
//	cache := licensegate.NewCheckoutCache(client, licensegate.DefaultProduct)
//	svc := licensegate.NewService(cache, licensegate.WithBuildInfo(licensegate.BuildInfo{Version: "4.31.0"}))
//	if svc.IsValid(ctx) {
//	    // enable licensed features
//	}
//
// # Failure Handling
//
// Every checkout failure, including an explicit denial, is cached and reported
// as "not licensed". Only a malformed expiration from the authority is
// returned as an error, from ExpiresAt and DaysUntilExpiration.
package licensegate
