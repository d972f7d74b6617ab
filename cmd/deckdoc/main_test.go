package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/deckdoc"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: temperature", deckdoc.ErrInvalidConfig), 2},
		{deckdoc.ErrInvalidInput, 2},
		{fmt.Errorf("opening presentation: %w", os.ErrNotExist), 2},
		{deckdoc.ErrLLMUnavailable, 1},
		{errors.New("boom"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRunWithoutCredentials(t *testing.T) {
	for _, key := range []string{
		"DECKDOC_CHAT_PROVIDER", "DECKDOC_CHAT_API_KEY", "DECKDOC_CHAT_BASE_URL",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
	in := filepath.Join(t.TempDir(), "deck.pptx")
	err := run(in, "", "", "", 0, true, false)
	if !errors.Is(err, deckdoc.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}
