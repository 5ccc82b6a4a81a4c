// Package sign implements the time-windowed HMAC signature scheme shared
// by inbound verification and outbound test deliveries:
//
//	t=<unix-seconds>,v1=<hex hmac-sha256("<timestamp>.<body>", secret)>
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pulseboard/backend/internal/domain/webhook"
)

// DefaultTolerance is the accepted clock skew between the signature
// timestamp and the receiver's clock.
const DefaultTolerance = 5 * time.Minute

// Compute returns the hex HMAC-SHA256 of "<timestamp>.<body>" under secret
func Compute(timestamp int64, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header builds the signature header value for an outbound delivery
func Header(timestamp int64, body []byte, secret string) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, Compute(timestamp, body, secret))
}

// Verify checks a signature header against the body and secret, rejecting
// timestamps outside the tolerance window even when the digest matches.
func Verify(header string, body []byte, secret string, tolerance time.Duration, now time.Time) error {
	timestamp, signatures, err := parseHeader(header)
	if err != nil {
		return err
	}

	age := now.Unix() - timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > tolerance {
		return webhook.ErrTimestampOutOfRange
	}

	expected := Compute(timestamp, body, secret)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return webhook.ErrVerificationFailed
}

// parseHeader extracts the timestamp and all v1 signatures from the header.
// Multiple v1 entries are accepted to allow secret rotation on the sender
// side.
func parseHeader(header string) (int64, []string, error) {
	var timestamp int64 = -1
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, webhook.ErrVerificationFailed
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp < 0 || len(signatures) == 0 {
		return 0, nil, webhook.ErrVerificationFailed
	}
	return timestamp, signatures, nil
}
