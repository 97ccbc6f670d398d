package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLockKeyIsStablePerNamespace(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, LockKey("tree", id), LockKey("tree", id))
	assert.NotEqual(t, LockKey("tree", id), LockKey("node", id))
	assert.NotEqual(t, LockKey("tree", id), LockKey("tree", uuid.New()))
}
