package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessageShortTextIsUntouched(t *testing.T) {
	assert.Equal(t, []string{"hello"}, SplitMessage("hello", 10))
	assert.Equal(t, []string{""}, SplitMessage("", 10))
}

func TestSplitMessagePrefersLineBoundaries(t *testing.T) {
	text := "first line\nsecond line\nthird line\n"
	chunks := SplitMessage(text, 24)

	require.Len(t, chunks, 2)
	assert.Equal(t, "first line\nsecond line\n", chunks[0])
	assert.Equal(t, "third line\n", chunks[1])
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitMessageBreaksOversizedLines(t *testing.T) {
	text := strings.Repeat("x", 25)
	chunks := SplitMessage(text, 10)

	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("x", 10), chunks[0])
	assert.Equal(t, strings.Repeat("x", 10), chunks[1])
	assert.Equal(t, strings.Repeat("x", 5), chunks[2])
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitMessageCountsRunesNotBytes(t *testing.T) {
	// Four runes of three bytes each must fit in a four-rune chunk.
	text := "日本語字"
	chunks := SplitMessage(text, 4)
	assert.Equal(t, []string{text}, chunks)

	chunks = SplitMessage(text+text, 4)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.Equal(t, 4, len([]rune(chunk)))
	}
}

func TestSplitMessageReassemblesLossless(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("line with some words in it\n")
	}
	text := sb.String()

	chunks := SplitMessage(text, 100)
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 100)
	}
}
