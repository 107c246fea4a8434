package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageCarriesCause(t *testing.T) {
	cause := errors.New("execution reverted")
	err := Wrap(KindTransactionReverted, cause, "primary transaction reverted")
	err.Op = "bridge"
	err.Hash = "0xabc"

	assert.Equal(t, "bridge failed: primary transaction reverted: execution reverted (tx 0xabc)", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindUnknownToken, "token %s is not registered", "FOO"))

	assert.True(t, Is(err, KindUnknownToken))
	assert.False(t, Is(err, KindUnknownNetwork))
	assert.True(t, errors.Is(err, New(KindUnknownToken, "")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindInternal))
}

func TestWithOp(t *testing.T) {
	t.Run("keeps kind and sets op", func(t *testing.T) {
		err := WithOp("swap", New(KindInsufficientBalance, "not enough"))
		require.NotNil(t, err)
		assert.Equal(t, KindInsufficientBalance, err.Kind)
		assert.Equal(t, "swap", err.Op)
	})

	t.Run("does not override existing op", func(t *testing.T) {
		inner := New(KindApprovalFailed, "approve reverted")
		inner.Op = "vault_deposit"
		err := WithOp("execute", inner)
		assert.Equal(t, "vault_deposit", err.Op)
		assert.Empty(t, inner.Hash, "original must not be mutated")
	})

	t.Run("classifies plain errors as internal", func(t *testing.T) {
		err := WithOp("transfer", errors.New("boom"))
		assert.Equal(t, KindInternal, err.Kind)
		assert.Equal(t, "transfer failed: boom", err.Error())
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, WithOp("transfer", nil))
	})
}
