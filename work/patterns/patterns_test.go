package patterns

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSkipsInvalidPatterns(t *testing.T) {
	s, errs := NewSet([]string{`(?i)^a`, `(`, ``, `b$`})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), `"("`)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{`(?i)^a`, `b$`}, s.Patterns())
	assert.True(t, s.Match("Apple"))
	assert.True(t, s.Match("cab"))
	assert.False(t, s.Match("xyz"))
}

func TestSetReplaceIsVisibleToReaders(t *testing.T) {
	s, _ := NewSet([]string{`^old$`})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Match("old")
		}()
	}
	assert.Empty(t, s.Replace([]string{`^new$`}))
	wg.Wait()

	assert.False(t, s.Match("old"))
	assert.True(t, s.Match("new"))
}
