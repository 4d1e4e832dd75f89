package isocountry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameIsCaseInsensitive(t *testing.T) {
	name, ok := Name("NG")
	assert.True(t, ok)
	assert.Equal(t, "Nigeria", name)

	name2, ok2 := Name("ng")
	assert.True(t, ok2)
	assert.Equal(t, name, name2)
}

func TestValidRejectsUnknownCode(t *testing.T) {
	assert.False(t, Valid("zz"))
	assert.False(t, Valid("nigeria"))
	assert.True(t, Valid("fr"))
}
