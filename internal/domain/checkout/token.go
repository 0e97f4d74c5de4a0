package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// TrackingToken derives the token that authorizes anonymous status lookups
// for an order. It is an HMAC over the order ID and the customer's phone
// digits, so the link can be shared without exposing other orders.
func TrackingToken(secret []byte, orderID, phoneDigits string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(phoneDigits))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyTrackingToken reports whether token matches the order in constant
// time.
func VerifyTrackingToken(secret []byte, orderID, phoneDigits, token string) bool {
	want := TrackingToken(secret, orderID, phoneDigits)
	return hmac.Equal([]byte(want), []byte(token))
}
