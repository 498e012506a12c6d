package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionalHelpers(t *testing.T) {
	assert.Equal(t, 0, OrZero[int](nil))
	assert.Equal(t, 7, OrZero(Ptr(7)))
	assert.Equal(t, 50, OrDefault(nil, 50))
	assert.Equal(t, 30, OrDefault(Ptr(30), 50))

	assert.Nil(t, StringOrNil("   "))
	assert.Equal(t, "chan", *StringOrNil(" chan "))
}
