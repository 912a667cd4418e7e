package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// submit clears the input, types the query and presses Enter.
func (s *Searcher) submit(page playwright.Page, selector, query string) error {
	input := page.Locator(selector).First()

	if err := input.Fill(""); err != nil {
		return fmt.Errorf("failed to clear input: %w", err)
	}
	if err := input.PressSequentially(query, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(typingDelay),
	}); err != nil {
		return fmt.Errorf("failed to type query: %w", err)
	}
	if err := input.Press("Enter"); err != nil {
		return fmt.Errorf("failed to submit query: %w", err)
	}
	return nil
}

// waitForAnswer blocks until an answer container is visible.
func (s *Searcher) waitForAnswer(page playwright.Page) error {
	err := page.Locator(strings.Join(AnswerSelectors, ", ")).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(s.generationTimeout()),
	})
	if err != nil {
		return fmt.Errorf("answer container did not appear: %w", err)
	}
	return nil
}

// waitForGeneration polls until no generating indicator is visible. It
// returns a *GenerationTimeoutError when the indicators outlast the
// generation budget.
func (s *Searcher) waitForGeneration(ctx context.Context, page playwright.Page) error {
	budget := s.cfg.Timeouts.Generation
	deadline := time.Now().Add(budget)

	ticker := time.NewTicker(s.cfg.Timeouts.PollInterval)
	defer ticker.Stop()

	for {
		if !generating(page) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return &GenerationTimeoutError{Waited: budget}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func generating(page playwright.Page) bool {
	for _, selector := range GeneratingSelectors {
		visible, err := page.Locator(selector).First().IsVisible()
		if err == nil && visible {
			return true
		}
	}
	return false
}

// extract returns the raw answer text. The first answer selector with any
// match wins and its matches are joined by a blank line. Without a match
// the visible page text is used.
func (s *Searcher) extract(page playwright.Page) (string, error) {
	for _, selector := range AnswerSelectors {
		locator := page.Locator(selector)
		count, err := locator.Count()
		if err != nil || count == 0 {
			continue
		}
		texts, err := locator.AllTextContents()
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", selector, err)
		}
		s.log.Debugf("extracted %d element(s) matching %q", count, selector)
		return strings.Join(texts, "\n\n"), nil
	}

	s.log.Warnf("no answer container matched, falling back to page text")

	body, err := page.Locator("body").InnerText()
	if err == nil && strings.TrimSpace(body) != "" {
		return body, nil
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return htmlToText(content)
}

func (s *Searcher) generationTimeout() float64 {
	return float64(s.cfg.Timeouts.Generation.Milliseconds())
}
