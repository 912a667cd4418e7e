package browser

import (
	"strings"

	"github.com/entrhq/askweb/pkg/logging"
	"github.com/playwright-community/playwright-go"
	"golang.org/x/net/html"
)

// Substrings of id/class values used by CAPTCHA and verification widgets.
var challengeMarkers = []string{
	"captcha",
	"cf-challenge",
	"challenge-form",
	"challenge-running",
	"challenge-stage",
	"turnstile",
	"verify-human",
	"px-captcha",
}

// Iframe sources that only appear when a challenge is being served.
var challengeFrameSources = []string{
	"challenges.cloudflare.com",
	"hcaptcha.com",
	"google.com/recaptcha",
	"recaptcha.net",
	"arkoselabs.com",
	"funcaptcha.com",
}

// HasChallenge reports whether page currently shows an anti-automation
// challenge. Errors reading the page count as "no challenge": this check
// must never be the reason an attempt fails.
func HasChallenge(page playwright.Page, log *logging.Logger) (string, bool) {
	content, err := page.Content()
	if err != nil {
		log.Debugf("challenge check skipped: %v", err)
		return "", false
	}
	return detectChallenge(content)
}

// detectChallenge walks the document looking for challenge markers and
// returns the first one found.
func detectChallenge(doc string) (string, bool) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", false
	}

	var walk func(n *html.Node) string
	walk = func(n *html.Node) string {
		if n.Type == html.ElementNode {
			if marker := nodeMarker(n); marker != "" {
				return marker
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if marker := walk(c); marker != "" {
				return marker
			}
		}
		return ""
	}

	marker := walk(root)
	return marker, marker != ""
}

func nodeMarker(n *html.Node) string {
	for _, attr := range n.Attr {
		switch attr.Key {
		case "id", "class":
			value := strings.ToLower(attr.Val)
			for _, marker := range challengeMarkers {
				if strings.Contains(value, marker) {
					return marker
				}
			}
		case "src":
			if strings.ToLower(n.Data) != "iframe" {
				continue
			}
			value := strings.ToLower(attr.Val)
			for _, source := range challengeFrameSources {
				if strings.Contains(value, source) {
					return source
				}
			}
		}
	}
	return ""
}
