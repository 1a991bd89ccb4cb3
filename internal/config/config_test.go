package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextSuffixSkipsUsedValues(t *testing.T) {
	c := &Config{Files: []*FileEntry{{Suffix: 1}, {Suffix: 3}}}
	assert.Equal(t, 2, c.NextSuffix())
}

func TestNextSuffixOnEmptyConfigStartsAtOne(t *testing.T) {
	c := &Config{}
	assert.Equal(t, 1, c.NextSuffix())
}

func TestBySuffixFindsMatchingEntry(t *testing.T) {
	fe := &FileEntry{Suffix: 2, Template: "/var/log/pg.log"}
	c := &Config{Files: []*FileEntry{{Suffix: 1}, fe}}
	assert.Same(t, fe, c.BySuffix(2))
}

func TestBySuffixReturnsNilWhenMissing(t *testing.T) {
	c := &Config{Files: []*FileEntry{{Suffix: 1}}}
	assert.Nil(t, c.BySuffix(99))
}
