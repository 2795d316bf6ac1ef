package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

var multiSpaceRegex = regexp.MustCompile(`\s+`)

// NormalizeAddress lower-cases and collapses whitespace. It is the basis of
// both the dedupe key and the persisted fullAddress_ci.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	return multiSpaceRegex.ReplaceAllString(addr, " ")
}

// Key identifies a listing within a run.
type Key struct {
	Address string
	Price   string
}

func NewKey(address string, price *float64) Key {
	k := Key{Address: NormalizeAddress(address)}
	if price != nil {
		k.Price = strconv.FormatFloat(*price, 'f', 2, 64)
	}
	return k
}

func (k Key) String() string {
	return k.Address + "|" + k.Price
}

// Fingerprint is a stable short id for a normalized full address, used as
// the row id in the stores.
func Fingerprint(fullAddressCI string) string {
	hash := sha256.Sum256([]byte(NormalizeAddress(fullAddressCI)))
	return hex.EncodeToString(hash[:16])
}
