// utils/safelog.go
// ============================================================================
// SAFE LOGGING - masks personal and financial data in production
// ============================================================================
// Ids and amounts written to logs go through these helpers. Outside
// production they are returned unchanged.
// ============================================================================

package utils

import (
	"regexp"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

var production atomic.Bool

// SetProduction switches masking on or off. Called once at startup.
func SetProduction(on bool) { production.Store(on) }

func IsProduction() bool { return production.Load() }

// ============================================================================
// PATTERNS
// ============================================================================

var (
	uuidRegex = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

	// Bare account and card numbers as they appear in aggregator errors.
	accountNumberRegex = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
)

// ============================================================================
// MASKING
// ============================================================================

// MaskID keeps the first 8 characters of an id.
func MaskID(id string) string {
	if !IsProduction() {
		return id
	}
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "..."
}

func MaskAmount(amount decimal.Decimal) string {
	if IsProduction() {
		return "***"
	}
	return amount.StringFixed(2)
}

// MaskPath shortens every UUID in a request path.
func MaskPath(path string) string {
	if !IsProduction() {
		return path
	}
	return uuidRegex.ReplaceAllStringFunc(path, MaskID)
}

// MaskString hides ids and card-like numbers inside free text.
func MaskString(input string) string {
	if !IsProduction() {
		return input
	}
	result := accountNumberRegex.ReplaceAllString(input, "****-****-****-****")
	return uuidRegex.ReplaceAllStringFunc(result, MaskID)
}

// GetEnvMode returns the current mode name for startup logs.
func GetEnvMode() string {
	if IsProduction() {
		return "production"
	}
	return "development"
}
