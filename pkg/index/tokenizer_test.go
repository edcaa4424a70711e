package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeLowercasesAndSplitsOnNonLetters(t *testing.T) {
	terms := Tokenize("The Whale—Moby-Dick; or, THE WHALE (1851)")
	assert.Equal(t, []string{"whale", "moby", "dick"}, terms)
}

func TestTokenizeDropsShortWordsAndStopwords(t *testing.T) {
	terms := Tokenize("it was the best of times, it was the worst of times")
	assert.Equal(t, []string{"best", "times", "worst"}, terms)
}

func TestTokenizeDeduplicates(t *testing.T) {
	terms := Tokenize("water water everywhere and all the boards did shrink")
	assert.Equal(t, []string{"water", "everywhere", "all", "boards", "did", "shrink"}, terms)
}

func TestTokenizeSplitsDigitsAndApostrophes(t *testing.T) {
	assert.Equal(t, []string{"don", "chapter"}, Tokenize("don't 42 chapter3"))
}

func TestTokenizeUnicodeLetters(t *testing.T) {
	assert.Equal(t, []string{"café", "naïve"}, Tokenize("café naïve"))
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("a an of 12 !!"))
}

func TestIsStopword(t *testing.T) {
	assert.True(t, IsStopword("The"))
	assert.True(t, IsStopword("with"))
	assert.False(t, IsStopword("whale"))
}
