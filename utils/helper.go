package utils

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/needibay/ordersync_backend/config"
	"github.com/ttacon/libphonenumber"
)

var CountryCode = "IN"

func IsValidEmail(email string) bool {
	// Basic email validation regex pattern
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err // Phone number is invalid
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil // Phone number is valid for the specified country code
}

// GenerateSkuId returns a random SKU like SKU-1a2b3c4d.
func GenerateSkuId() string {
	return "SKU-" + uuid.NewString()[:8]
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["error"] = err.Error()
		return errorResponse
	}

	for _, fieldErr := range validationErrors {
		field := strings.ToLower(fieldErr.Field())
		switch fieldErr.Tag() {
		case "required":
			errorResponse[field] = fmt.Sprintf("%s is required", field)
		case "email":
			errorResponse[field] = fmt.Sprintf("%s must be a valid email", field)
		case "gt", "gte":
			errorResponse[field] = fmt.Sprintf("%s is out of range", field)
		default:
			errorResponse[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return errorResponse
}

// StockLock obtains the distributed per-product mutation lock and returns a
// release func. Redis lock is a best-effort optimization: correctness does not
// depend on it because ledger mutations also serialize via a MySQL advisory
// lock on the posting transaction's connection.
func StockLock(ctx context.Context, businessId string, productId int, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Redis not up yet; fall through to the advisory lock only.
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("stock:%s:%d", businessId, productId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	})
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain stock lock", lockKey, err)
		return nil, errors.New("could not obtain stock lock for product")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining stock lock", lockKey, err)
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}

func UniqueSlice[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	out := make([]T, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func DereferencePtr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// StartOfDayUTC normalizes t to 00:00:00.000 UTC.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDayUTC normalizes t to 23:59:59.999 UTC.
func EndOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), time.UTC)
}
