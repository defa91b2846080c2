package config

import (
	"os"
	"strings"
)

// StrictOrderPricing upgrades missing catalog lookups during order creation
// from silent zero-pricing to a hard validation error. The lenient default
// matches what downstream consumers already rely on.
//
// Set via env:
// - STRICT_ORDER_PRICING=true
func StrictOrderPricing() bool {
	return boolFromEnv("STRICT_ORDER_PRICING")
}

// MailDisabled turns the notification worker's SMTP sends into logged no-ops.
// Jobs are still claimed and settled, so the queue keeps draining in
// environments without mail credentials.
//
// Set via env:
// - MAIL_DISABLED=true
func MailDisabled() bool {
	return boolFromEnv("MAIL_DISABLED")
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
