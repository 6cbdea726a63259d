package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSamplerFromRatio(t *testing.T) {
	assert.Contains(t, Options{}.sampler().Description(), "AlwaysOnSampler", "0 означает все трассы")
	assert.Contains(t, Options{SampleRatio: 1}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Options{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased{0.25}")
}
