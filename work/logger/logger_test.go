package logger

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn")
	l.SetOutput(&buf)

	l.Info("{logger - test} hidden")
	l.Warn("{logger - test} shown %d", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN] {logger - test} shown 1")
	assert.Len(t, l.Recent(), 1)
}

func TestParseLogLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
		{"bogus", INFO},
	} {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLogLevel(tc.in))
		})
	}
}

func TestRecentWrapsOldestFirst(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug")
	l.SetOutput(&buf)

	for i := 0; i < maxRecentEntries+5; i++ {
		l.Debug("line %d", i)
	}

	recent := l.Recent()
	assert.Len(t, recent, maxRecentEntries)
	assert.Equal(t, "line 5", recent[0].Message)
	assert.Equal(t, fmt.Sprintf("line %d", maxRecentEntries+4), recent[len(recent)-1].Message)

	l.ClearRecent()
	assert.Empty(t, l.Recent())
}
