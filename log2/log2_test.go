package log2

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelGate(t *testing.T) {
	t.Parallel()
	b := bytes.Buffer{}
	l := NewWriter(&b, LInfo)
	l.SetFlags(0)

	l.Debugf("hidden")
	l.Infof("shown i=%d", 1)
	l.Errorf("shown too")
	out := b.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown i=1")
	assert.Contains(t, out, "error: shown too")

	l.SetLevel(LDebug)
	l.Debugf("now visible")
	assert.Contains(t, b.String(), "debug: now visible")
}

func TestCloneIndependentLevel(t *testing.T) {
	t.Parallel()
	b := bytes.Buffer{}
	l := NewWriter(&b, LError)
	l.SetFlags(0)
	c := l.Clone(LDebug)
	c.SetFlags(0)

	l.Infof("parent info")
	c.Debugf("clone debug")
	out := b.String()
	assert.NotContains(t, out, "parent info")
	assert.Contains(t, out, "clone debug")
}

func TestPercentInArgsIsLiteral(t *testing.T) {
	t.Parallel()
	b := bytes.Buffer{}
	l := NewWriter(&b, LDebug)
	l.SetFlags(0)
	payload := "payload with 100% weird %s stuff"
	l.Error(payload)
	assert.Contains(t, b.String(), "100% weird %s stuff")
	assert.False(t, strings.Contains(b.String(), "MISSING"))
}

func TestFlagsConstants(t *testing.T) {
	t.Parallel()
	assert.Equal(t, log.Lshortfile, LServiceFlags)
}
