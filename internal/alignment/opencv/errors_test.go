package opencv

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrUnavailableWraps(t *testing.T) {
	err := fmt.Errorf("backend opencv: %w", ErrUnavailable)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "gocv build tag")
}
