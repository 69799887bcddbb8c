package pagebackup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFatalErrorMessage(t *testing.T) {
	err := NewFatalError("backup failed for %s: %d files", "pgdata", 3)
	assert.Contains(t, err.Error(), "pgdata")
	assert.Contains(t, err.Error(), "3 files")
}

func TestPageFormatErrorMessage(t *testing.T) {
	err := PageFormatError{Path: "base/1/1", Block: 4}
	assert.Contains(t, err.Error(), "base/1/1")
	assert.Contains(t, err.Error(), "4")
}

func TestShortReadErrorMessage(t *testing.T) {
	err := ShortReadError{Path: "base/1/1", Block: 4, Got: 10}
	assert.Contains(t, err.Error(), "base/1/1")
	assert.Contains(t, err.Error(), "10")
}
