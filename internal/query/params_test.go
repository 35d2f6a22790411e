package query

import (
	"net/url"
	"testing"

	"github.com/sandeepkv93/trackd/internal/storage"
)

func TestDateBucket(t *testing.T) {
	cases := []struct {
		raw  string
		want storage.DateBucket
	}{
		{"planned", storage.DatePlanned},
		{"today", storage.DateToday},
		{"not sorted", storage.DateNotSorted},
		{"", storage.DateAny},
		{"bogus", storage.DateAny},
	}
	for _, tc := range cases {
		values := url.Values{}
		if tc.raw != "" {
			values.Set("date", tc.raw)
		}
		if got := DateBucket(values); got != tc.want {
			t.Errorf("DateBucket(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestOrderingWhitelist(t *testing.T) {
	values := url.Values{"ordering": []string{"-name"}}
	if got := Ordering(values, "-updated_at"); got != "-name" {
		t.Fatalf("ordering = %q", got)
	}
	values.Set("ordering", "owner")
	if got := Ordering(values, "-updated_at"); got != "-updated_at" {
		t.Fatalf("non-whitelisted ordering should fall back, got %q", got)
	}
}

func TestItemsPage(t *testing.T) {
	page := ItemsPage(url.Values{}, 2)
	if page.Number != 1 || page.Limit() != 2 || page.Offset() != 0 {
		t.Fatalf("unexpected default page: %#v", page)
	}

	page = ItemsPage(url.Values{"items_page": []string{"3"}}, 2)
	if page.Number != 3 || page.Offset() != 4 {
		t.Fatalf("unexpected page 3: %#v", page)
	}

	page = ItemsPage(url.Values{"items_page": []string{"zero"}}, 2)
	if page.Number != 1 {
		t.Fatalf("malformed page should fall back to 1: %#v", page)
	}
}

func TestPageLinks(t *testing.T) {
	page := Page{Number: 2, Size: 2}
	if prev := page.Previous(); prev == nil || *prev != 1 {
		t.Fatalf("unexpected previous: %v", prev)
	}
	if next := page.Next(5); next == nil || *next != 3 {
		t.Fatalf("unexpected next: %v", next)
	}
	if next := page.Next(4); next != nil {
		t.Fatalf("expected no next page, got %v", next)
	}
	first := Page{Number: 1, Size: 2}
	if prev := first.Previous(); prev != nil {
		t.Fatalf("expected no previous page, got %v", prev)
	}
}
