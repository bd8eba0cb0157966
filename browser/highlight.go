// Package browser provides the browser automation layer using go-rod.
package browser

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
)

// Highlighter draws visual markers on elements right before the session
// acts on them. It injects CSS and overlay elements so a headful run
// can be watched like a demo.
type Highlighter struct {
	page    *rod.Page
	enabled bool
	delay   time.Duration // How long to show the marker before the action
}

// NewHighlighter creates a highlighter for the given page.
func NewHighlighter(page *rod.Page, enabled bool) *Highlighter {
	return &Highlighter{
		page:    page,
		enabled: enabled,
		delay:   300 * time.Millisecond,
	}
}

// SetDelay sets how long the marker is shown before the action runs.
func (h *Highlighter) SetDelay(d time.Duration) {
	h.delay = d
}

// SetEnabled enables or disables highlighting.
func (h *Highlighter) SetEnabled(enabled bool) {
	h.enabled = enabled
}

// injectStyles injects the CSS for highlight markers if not already present.
func (h *Highlighter) injectStyles() error {
	_, err := h.page.Eval(`(function() {
		if (document.getElementById('cartflow-highlight-styles')) return;

		const style = document.createElement('style');
		style.id = 'cartflow-highlight-styles';
		style.textContent = ` + "`" + `
			.cartflow-highlight-box {
				position: fixed;
				pointer-events: none;
				z-index: 999999;
				border: 3px solid #ff6b35;
				border-radius: 4px;
				transition: all 0.15s ease-out;
			}
			.cartflow-highlight-label {
				position: fixed;
				pointer-events: none;
				z-index: 999999;
				background: #ff6b35;
				color: white;
				padding: 2px 6px;
				font-size: 11px;
				font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
				font-weight: 500;
				border-radius: 3px;
				white-space: nowrap;
			}
		` + "`" + `;
		document.head.appendChild(style);
	})()`)
	return err
}

// Highlight draws a box and action label around the first element
// matching the selector. Unknown selectors are ignored so the action
// itself still runs.
func (h *Highlighter) Highlight(selector, action string) error {
	if !h.enabled || h.page == nil {
		return nil
	}

	if err := h.injectStyles(); err != nil {
		return err
	}

	js := fmt.Sprintf(`(function() {
		document.querySelectorAll('.cartflow-highlight-box, .cartflow-highlight-label').forEach(el => el.remove());

		const target = document.querySelector(%q);
		if (!target) return;

		const rect = target.getBoundingClientRect();
		const padding = 4;

		const box = document.createElement('div');
		box.className = 'cartflow-highlight-box';
		box.style.left = (rect.left - padding) + 'px';
		box.style.top = (rect.top - padding) + 'px';
		box.style.width = (rect.width + 2 * padding) + 'px';
		box.style.height = (rect.height + 2 * padding) + 'px';
		document.body.appendChild(box);

		const label = document.createElement('div');
		label.className = 'cartflow-highlight-label';
		label.textContent = %q;
		label.style.left = (rect.left - padding) + 'px';
		label.style.top = (rect.top - padding - 22) + 'px';
		document.body.appendChild(label);
	})()`, selector, action)

	_, err := h.page.Eval(js)
	if err != nil {
		return fmt.Errorf("failed to show highlight: %w", err)
	}

	// Wait for visual feedback
	time.Sleep(h.delay)
	return nil
}

// Remove removes all highlight markers from the page.
func (h *Highlighter) Remove() error {
	if h.page == nil {
		return nil
	}

	_, err := h.page.Eval(`(function() {
		document.querySelectorAll('.cartflow-highlight-box, .cartflow-highlight-label').forEach(el => el.remove());
	})()`)
	return err
}
