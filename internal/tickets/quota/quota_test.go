package quota_test

import (
	"testing"

	"ms-ticket-issuance/internal/tickets/quota"

	"github.com/stretchr/testify/assert"
)

func TestAdmit(t *testing.T) {
	enforcer := quota.New()

	for existing := 0; existing < quota.DefaultLimit; existing++ {
		assert.NoError(t, enforcer.Admit(existing), "existing=%d", existing)
	}

	err := enforcer.Admit(quota.DefaultLimit)
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)

	err = enforcer.Admit(quota.DefaultLimit + 5)
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
}

func TestRemaining(t *testing.T) {
	enforcer := quota.New()

	assert.Equal(t, 3, enforcer.Remaining(0))
	assert.Equal(t, 1, enforcer.Remaining(2))
	assert.Equal(t, 0, enforcer.Remaining(3))
	assert.Equal(t, 0, enforcer.Remaining(7))
}

func TestZeroLimitFallsBackToDefault(t *testing.T) {
	enforcer := &quota.Enforcer{}

	assert.Equal(t, quota.DefaultLimit, enforcer.Max())
	assert.NoError(t, enforcer.Admit(2))
	assert.ErrorIs(t, enforcer.Admit(3), quota.ErrQuotaExceeded)
}

func TestCustomLimit(t *testing.T) {
	enforcer := &quota.Enforcer{Limit: 1}

	assert.NoError(t, enforcer.Admit(0))
	assert.ErrorIs(t, enforcer.Admit(1), quota.ErrQuotaExceeded)
	assert.Equal(t, 1, enforcer.Remaining(0))
}
