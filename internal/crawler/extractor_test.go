package crawler

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nao1215/lexicrawl/internal/config"
)

const testBase = "https://www.perseus.tufts.edu/hopper/"

func TestLinkExtractor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		pages   []string
		details []string
	}{
		{
			name:    "next arrow with image",
			body:    `<a class="arrow" href="text?doc=p2"><img alt="next" src="next.gif"></a>`,
			pages:   []string{testBase + "text?doc=p2"},
			details: []string{},
		},
		{
			name:    "previous arrow is ignored",
			body:    `<a class="arrow" href="text?doc=p0"><img alt="previous" src="prev.gif"></a>`,
			pages:   []string{},
			details: []string{},
		},
		{
			name:    "next image without class is ignored",
			body:    `<a href="text?doc=p2"><img alt="next"></a>`,
			pages:   []string{},
			details: []string{},
		},
		{
			name:    "nested image is not a direct child",
			body:    `<a class="arrow" href="text?doc=p2"><span><img alt="next"></span></a>`,
			pages:   []string{},
			details: []string{},
		},
		{
			name:    "detail link with marker",
			body:    `<a class="xml" href="xmlchunk?doc=lsj:entry=a">xml</a>`,
			pages:   []string{},
			details: []string{testBase + "xmlchunk?doc=lsj:entry=a"},
		},
		{
			name:    "detail class without marker",
			body:    `<a class="xml" href="text?doc=lsj">xml</a>`,
			pages:   []string{},
			details: []string{},
		},
		{
			name:    "marker without detail class",
			body:    `<a href="xmlchunk?doc=lsj">xml</a>`,
			pages:   []string{},
			details: []string{},
		},
		{
			name:    "multiple classes",
			body:    `<a class="link xml" href="/hopper/xmlchunk?x=1">xml</a>`,
			pages:   []string{},
			details: []string{"https://www.perseus.tufts.edu/hopper/xmlchunk?x=1"},
		},
		{
			name:    "non http href is dropped",
			body:    `<a class="xml" href="mailto:xmlchunk@example.com">mail</a>`,
			pages:   []string{},
			details: []string{},
		},
		{
			name: "document order is kept",
			body: `<a class="xml" href="xmlchunk?n=2">2</a>
				<a class="arrow" href="text?p=2"><img alt="next"></a>
				<a class="xml" href="xmlchunk?n=1">1</a>`,
			pages:   []string{testBase + "text?p=2"},
			details: []string{testBase + "xmlchunk?n=2", testBase + "xmlchunk?n=1"},
		},
	}

	e := NewLinkExtractor(config.DefaultClassificationRule())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			links, err := e.Extract(testBase, []byte("<html><body>"+tt.body+"</body></html>"))
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if !reflect.DeepEqual(links.Pages, tt.pages) {
				t.Errorf("Pages = %v, want %v", links.Pages, tt.pages)
			}
			if !reflect.DeepEqual(links.Details, tt.details) {
				t.Errorf("Details = %v, want %v", links.Details, tt.details)
			}
		})
	}
}

func TestLinkExtractorIsPure(t *testing.T) {
	t.Parallel()

	body := []byte(listing(
		detailLink("xmlchunk?n=1"),
		nextLink("text?p=2"),
		detailLink("xmlchunk?n=2"),
	))

	e := NewLinkExtractor(config.DefaultClassificationRule())
	first, err := e.Extract(testBase, body)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for range 3 {
		again, err := e.Extract(testBase, body)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Extract() not repeatable: %v != %v", first, again)
		}
	}
}

func TestLinkExtractorCustomRule(t *testing.T) {
	t.Parallel()

	rule := config.ClassificationRule{
		PageClass:    "pager",
		NextAlt:      "forward",
		DetailClass:  "entry",
		DetailMarker: "/entries/",
	}
	e := NewLinkExtractor(rule)
	if e.Rule() != rule {
		t.Errorf("Rule() = %+v, want %+v", e.Rule(), rule)
	}

	body := `<a class="pager" href="/list/2"><img alt="forward"></a>
		<a class="entry" href="/entries/logos">logos</a>
		<a class="arrow" href="/list/3"><img alt="next"></a>`
	links, err := e.Extract("https://example.com/list/1", []byte(body))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !reflect.DeepEqual(links.Pages, []string{"https://example.com/list/2"}) {
		t.Errorf("unexpected pages %v", links.Pages)
	}
	if !reflect.DeepEqual(links.Details, []string{"https://example.com/entries/logos"}) {
		t.Errorf("unexpected details %v", links.Details)
	}
}

func TestAttrIdentifier(t *testing.T) {
	t.Parallel()

	id := NewAttrIdentifier(config.IdentifierRule{Element: "entryFree", Attribute: "key"})

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{name: "xml entry", body: `<?xml version="1.0"?><entryFree key="lo/gos">word</entryFree>`, want: "lo/gos"},
		{name: "first element wins", body: `<entryFree key="a"/><entryFree key="b"/>`, want: "a"},
		{name: "surrounding whitespace trimmed", body: `<entryFree key="  a  ">x</entryFree>`, want: "a"},
		{name: "missing element", body: `<div key="a">x</div>`, wantErr: ErrMissingIdentifier},
		{name: "missing attribute", body: `<entryFree id="n1">x</entryFree>`, wantErr: ErrMissingIdentifier},
		{name: "empty attribute", body: `<entryFree key="">x</entryFree>`, wantErr: ErrMissingIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := id.Identify([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Identify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Identify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractionError(t *testing.T) {
	t.Parallel()

	err := &ExtractionError{URL: "https://example.com/x", Err: ErrMissingIdentifier}
	if !errors.Is(err, ErrMissingIdentifier) {
		t.Error("expected ExtractionError to unwrap to its cause")
	}
	if err.ErrorKind() != "extraction" {
		t.Errorf("unexpected kind %s", err.ErrorKind())
	}
}

func TestFrontier(t *testing.T) {
	t.Parallel()

	f := NewFrontier("a", "b")
	f.Push("c", "a")
	if f.Len() != 4 {
		t.Fatalf("expected 4 queued URLs, got %d", f.Len())
	}

	var got []string
	for {
		u, ok := f.Pop()
		if !ok {
			break
		}
		got = append(got, u)
	}
	if !reflect.DeepEqual(got, []string{"a", "b", "c", "a"}) {
		t.Errorf("Pop order = %v", got)
	}
	if _, ok := f.Pop(); ok {
		t.Error("expected empty frontier")
	}
}

func TestVisitedSet(t *testing.T) {
	t.Parallel()

	v := NewVisitedSet()
	if !v.Add("a") || !v.Add("b") {
		t.Fatal("expected new URLs to be added")
	}
	if v.Add("a") {
		t.Error("expected duplicate to be rejected")
	}
	if !v.Contains("b") || v.Contains("c") {
		t.Error("unexpected Contains result")
	}
	if v.Len() != 2 {
		t.Errorf("expected 2 URLs, got %d", v.Len())
	}

	urls := v.URLs()
	urls[0] = "mutated"
	if v.URLs()[0] != "a" {
		t.Error("URLs() must return a copy")
	}
}
