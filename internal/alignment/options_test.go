package alignment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	o := Options{}.withDefaults()
	d := DefaultOptions()
	assert.Equal(t, d.MaxKeypoints, o.MaxKeypoints)
	assert.Equal(t, d.RetentionFraction, o.RetentionFraction)
	assert.Equal(t, DefaultSeed, o.Seed)
	assert.Equal(t, 0.1, o.MinInlierRatio)
	assert.NotNil(t, o.Logger)
	assert.NoError(t, o.Validate())
}

func TestWithDefaultsKeepsNegativeInlierRatio(t *testing.T) {
	o := Options{MinInlierRatio: -1}.withDefaults()
	assert.Equal(t, -1.0, o.MinInlierRatio)
	assert.NoError(t, o.Validate())

	o = Options{MinInlierRatio: 0.3}.withDefaults()
	assert.Equal(t, 0.3, o.MinInlierRatio)
}

func TestOptionsValidate(t *testing.T) {
	base := DefaultOptions()
	cases := map[string]func(*Options){
		"retention zero":  func(o *Options) { o.RetentionFraction = 0 },
		"retention above": func(o *Options) { o.RetentionFraction = 1.2 },
		"threshold":       func(o *Options) { o.RansacThreshold = -1 },
		"iterations":      func(o *Options) { o.RansacIterations = 0 },
		"confidence":      func(o *Options) { o.Confidence = 1 },
		"inlier ratio":    func(o *Options) { o.MinInlierRatio = 1.01 },
		"ratio test":      func(o *Options) { o.RatioTest = 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := base
			mutate(&o)
			assert.Error(t, o.Validate())
		})
	}
}
