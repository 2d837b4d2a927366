//go:build !gocv

package opencv

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"layer-align/internal/alignment"
)

func TestStubUnavailable(t *testing.T) {
	assert.False(t, Available())
	res, err := Align(nil, nil, alignment.Options{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrUnavailable)
}
