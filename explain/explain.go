// Package explain asks a language model for a detailed explanation of each
// slide.
package explain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/deckdoc/llm"
	"github.com/brunobiangulo/deckdoc/parser"
)

const promptTemplate = `Given the following slide content, generate a detailed, topic-wise explanation in a point-wise format with topics and subtopics highlighted. Ensure proper spacing, line breaks after every topic and subtopic, indentation, and bolding of key aspects:

Slide Title: %s
Slide Content: %s

Detailed Explanation:`

// Config controls how explanations are requested.
type Config struct {
	Model        string        // Passed to the provider; empty uses the provider default
	Temperature  float64       // Sampling temperature, 0.5 in the default configuration
	MaxTokens    int           // 0 leaves the limit to the provider
	Concurrency  int           // Requests in flight at once; <= 1 is strictly sequential
	SlideTimeout time.Duration // Upper bound per slide, retries included; 0 means none
}

// Explanation is the model's reply for one slide. When the model could not
// be reached after retries, Text is empty and Err records why.
type Explanation struct {
	PageNumber  int
	Text        string
	Err         error
	Cached      bool
	TotalTokens int
}

// Available reports whether the explanation was obtained.
func (e Explanation) Available() bool { return e.Err == nil }

// Cache stores explanations across runs, keyed by CacheKey.
type Cache interface {
	GetExplanation(ctx context.Context, key string) (text string, ok bool, err error)
	PutExplanation(ctx context.Context, key, model, text string) error
}

// Requester turns slides into explanations.
type Requester struct {
	chat  llm.Provider
	cfg   Config
	cache Cache
}

// New creates a Requester. cache may be nil.
func New(chat llm.Provider, cfg Config, cache Cache) *Requester {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Requester{chat: chat, cfg: cfg, cache: cache}
}

// BuildPrompt renders the prompt for a slide from its title and body text.
func BuildPrompt(s parser.Slide) string {
	return fmt.Sprintf(promptTemplate, s.Title, s.PromptText())
}

// CacheKey identifies a prompt sent to a given model.
func CacheKey(model, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// Explain requests the explanation for one slide. A transient failure is
// reported in Explanation.Err with a nil error; a fatal failure (bad
// credentials, rejected request, cancellation) is returned as the error.
func (r *Requester) Explain(ctx context.Context, slide parser.Slide) (Explanation, error) {
	if err := ctx.Err(); err != nil {
		return Explanation{}, err
	}

	exp := Explanation{PageNumber: slide.PageNumber}
	prompt := BuildPrompt(slide)
	key := CacheKey(r.cfg.Model, prompt)

	if r.cache != nil {
		text, ok, err := r.cache.GetExplanation(ctx, key)
		if err != nil {
			slog.Warn("explain: cache lookup failed", "slide", slide.PageNumber, "error", err)
		} else if ok {
			slog.Debug("explain: cache hit", "slide", slide.PageNumber)
			exp.Text = text
			exp.Cached = true
			return exp, nil
		}
	}

	reqCtx := ctx
	if r.cfg.SlideTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.cfg.SlideTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := r.chat.Chat(reqCtx, llm.ChatRequest{
		Model:       r.cfg.Model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Explanation{}, ctx.Err()
		}
		if llm.IsFatal(err) {
			return Explanation{}, fmt.Errorf("explaining slide %d: %w", slide.PageNumber, err)
		}
		slog.Warn("explain: explanation unavailable",
			"slide", slide.PageNumber,
			"elapsed", time.Since(start).Round(time.Millisecond),
			"error", err,
		)
		exp.Err = err
		return exp, nil
	}

	exp.Text = resp.Content
	exp.TotalTokens = resp.TotalTokens
	slog.Debug("explain: slide explained",
		"slide", slide.PageNumber,
		"tokens", resp.TotalTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if r.cache != nil {
		if err := r.cache.PutExplanation(ctx, key, r.cfg.Model, exp.Text); err != nil {
			slog.Warn("explain: cache store failed", "slide", slide.PageNumber, "error", err)
		}
	}
	return exp, nil
}

// ExplainAll explains every slide and returns one Explanation per slide in
// slide order. Requests run up to Config.Concurrency at a time. The first
// fatal failure cancels the remaining requests and is returned.
func (r *Requester) ExplainAll(ctx context.Context, slides []parser.Slide) ([]Explanation, error) {
	out := make([]Explanation, len(slides))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i := range slides {
		g.Go(func() error {
			exp, err := r.Explain(gctx, slides[i])
			if err != nil {
				return err
			}
			out[i] = exp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	unavailable := 0
	for _, e := range out {
		if !e.Available() {
			unavailable++
		}
	}
	slog.Info("explain: slides explained",
		"slides", len(slides),
		"unavailable", unavailable,
		"concurrency", r.cfg.Concurrency,
	)
	return out, nil
}
