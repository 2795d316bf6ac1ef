package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "123 main st, phoenix, az 85001", NormalizeAddress("  123  Main St,\tPhoenix, AZ 85001 "))
}

func TestNewKey(t *testing.T) {
	price := 650000.0
	a := NewKey("123 Main St", &price)
	b := NewKey("123  MAIN st", &price)
	assert.Equal(t, a, b)

	c := NewKey("123 Main St", nil)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "123 main st|", c.String())
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("123 main st, phoenix, az 85001")
	b := Fingerprint("123 Main St,  Phoenix, AZ 85001")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, Fingerprint("456 oak ave"))
}
