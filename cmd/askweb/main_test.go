package main

import (
	"errors"
	"os"
	"testing"

	"github.com/entrhq/askweb/pkg/browser"
	"github.com/stretchr/testify/assert"
	"golang.org/x/term"
)

func TestBoxWidthFallsBackWithoutTerminal(t *testing.T) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		t.Skip("stdout is a terminal")
	}
	t.Setenv("COLUMNS", "200")
	assert.Equal(t, 80, boxWidth())
}

func TestRenderPlain(t *testing.T) {
	assert.Equal(t, "Paris.", renderAnswer("capital of France", "Paris.", true))

	err := &browser.SearchFailedError{Query: "q", Attempts: 10, Err: errors.New("no query input found")}
	assert.Equal(t,
		"search failed (search_failed): search failed after 10 attempts: no query input found",
		renderError(err, true))
}

func TestRenderAnswerStyled(t *testing.T) {
	out := renderAnswer("capital of France", "Paris.", false)
	assert.Contains(t, out, "capital of France")
	assert.Contains(t, out, "Paris.")
	assert.Contains(t, out, "╭")
}
