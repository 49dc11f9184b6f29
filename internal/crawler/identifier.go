package crawler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/lexicrawl/internal/config"
)

// Identifier extracts the identifying key of a detail payload.
// A payload without a key is reported as ErrMissingIdentifier.
type Identifier interface {
	Identify(body []byte) (string, error)
}

// AttrIdentifier takes the key from an attribute of the first matching
// element, e.g. <entryFree key="logos">.
type AttrIdentifier struct {
	rule config.IdentifierRule
}

// NewAttrIdentifier creates an AttrIdentifier for rule.
func NewAttrIdentifier(rule config.IdentifierRule) *AttrIdentifier {
	return &AttrIdentifier{rule: rule}
}

// Identify implements Identifier.
//
// Element and attribute names are matched case-insensitively, because the
// HTML parser used for lenient XML handling lowercases them.
func (i *AttrIdentifier) Identify(body []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnparsableBody, err)
	}

	elem := goquery.NewDocumentFromNode(root).Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.EqualFold(goquery.NodeName(s), i.rule.Element)
	}).First()
	if elem.Length() == 0 {
		return "", fmt.Errorf("%w: no <%s> element", ErrMissingIdentifier, i.rule.Element)
	}

	attr := strings.ToLower(i.rule.Attribute)
	for _, a := range elem.Nodes[0].Attr {
		if strings.ToLower(a.Key) == attr && strings.TrimSpace(a.Val) != "" {
			return strings.TrimSpace(a.Val), nil
		}
	}
	return "", fmt.Errorf("%w: <%s> has no %q attribute", ErrMissingIdentifier, i.rule.Element, i.rule.Attribute)
}
