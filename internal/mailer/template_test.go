package mailer

import (
	"strings"
	"testing"
)

func TestRenderExpandsVariables(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("مرحبا {{ name }}، رابطك: {{ unsubscribe_url }}", map[string]interface{}{
		"name":            "نور",
		"unsubscribe_url": "https://almanara.example/u?token=x",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, "مرحبا نور") || !strings.Contains(out, "token=x") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRenderDefaultFilter(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render(`Hello {{ name | default: "there" }}`, map[string]interface{}{
		"name": "",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "Hello there" {
		t.Errorf("expected fallback, got %q", out)
	}
}

func TestRenderMissingVariableIsEmpty(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("Hi {{ nobody }}!", nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "Hi !" {
		t.Errorf("missing variables must render empty, got %q", out)
	}
}

func TestRenderParseError(t *testing.T) {
	r := NewRenderer()

	if _, err := r.Render("{% broken", nil); err == nil {
		t.Error("expected a parse error")
	}
}

func TestRenderReusesCachedTemplate(t *testing.T) {
	r := NewRenderer()

	first, err := r.Render("{{ n }}", map[string]interface{}{"n": "1"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	second, err := r.Render("{{ n }}", map[string]interface{}{"n": "2"})
	if err != nil {
		t.Fatalf("cached Render failed: %v", err)
	}
	if first != "1" || second != "2" {
		t.Errorf("cache must not freeze bindings: %q %q", first, second)
	}
}

func TestBuildHTMLInjectsPreheader(t *testing.T) {
	out := BuildHTML("<p>body</p>", "July highlights & more")
	if !strings.HasPrefix(out, `<span style="display:none;`) {
		t.Errorf("preheader span must lead the body: %q", out)
	}
	if !strings.Contains(out, "July highlights &amp; more") {
		t.Errorf("preheader must be HTML-escaped: %q", out)
	}
	if !strings.HasSuffix(out, "<p>body</p>") {
		t.Errorf("content must follow the preheader: %q", out)
	}
}

func TestBuildHTMLWithoutPreheader(t *testing.T) {
	if out := BuildHTML("<p>body</p>", ""); out != "<p>body</p>" {
		t.Errorf("empty preheader must leave the body untouched, got %q", out)
	}
}

func TestUnsubscribeURLEncodesParams(t *testing.T) {
	u := UnsubscribeURL("https://almanara.example", "a+b@example.com", "tok/1")
	if !strings.Contains(u, "email=a%2Bb%40example.com") {
		t.Errorf("email must be query-encoded: %q", u)
	}
	if !strings.Contains(u, "token=tok%2F1") {
		t.Errorf("token must be query-encoded: %q", u)
	}
}
