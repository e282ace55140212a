package browser

import "testing"

func TestShouldBlock(t *testing.T) {
	set := blockSetFor([]string{"fonts", "Media", "images", " stylesheets "})
	cases := map[string]bool{
		"Font":       true,
		"Media":      true,
		"Stylesheet": true,
		"Image":      false,
		"Document":   false,
		"XHR":        false,
	}
	for typ, want := range cases {
		if got := shouldBlock(set, typ); got != want {
			t.Errorf("shouldBlock(%q) = %v, want %v", typ, got, want)
		}
	}
}

func TestBlockSetFor_OnlyImages(t *testing.T) {
	if set := blockSetFor([]string{"images"}); len(set) != 0 {
		t.Errorf("images must never be blocked: %v", set)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeHeadless, "headless": ModeHeadless, "headful": ModeHeadful, "http": ModeHTTP} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("firefox"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
