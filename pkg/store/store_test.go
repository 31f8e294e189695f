package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	base := errors.New("connection reset")

	assert.True(t, IsTransient(NewError("insert", TableUsers, Transient, base)))
	assert.True(t, IsTransient(fmt.Errorf("save user: %w", NewError("insert", TableUsers, Transient, base))))
	assert.False(t, IsTransient(NewError("insert", TableUsers, Permanent, base)))
	assert.False(t, IsTransient(base))
	assert.False(t, IsTransient(nil))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := NewError("select", TableJobs, Permanent, base)

	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "select jobs (permanent)")
}

func TestApplyOptions(t *testing.T) {
	o := ApplyOptions(OrderBy("created_at", true), Limit(5), nil)
	assert.Equal(t, SelectOptions{OrderBy: "created_at", Desc: true, Limit: 5}, o)
}
