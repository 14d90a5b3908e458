package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFactoryReturnsSingletons(t *testing.T) {
	f := NewFactory(nil)

	repos := f.GetRepositories()
	assert.Same(t, repos, f.GetRepositories())
	assert.Equal(t, repos.Order, f.GetOrderRepository())
	assert.NotNil(t, repos.PaymentEvent)
}
