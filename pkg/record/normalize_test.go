package record

import (
	"errors"
	"testing"
	"time"

	"github.com/elonfeng/jokemachine/pkg/fetch"
)

func testRaw() *fetch.RawFetch {
	return &fetch.RawFetch{
		URL:          "http://example.com/page",
		ContentType:  "application/json",
		Charset:      "utf-8",
		LastModified: "Mon, 01 Jan 2024 12:00:00 GMT",
		RetrievedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNormalize(t *testing.T) {
	f := Fields{}.
		Set(FieldExternalID, "t3_abc").
		Set(FieldTitle, "  Rich man, Poor man \n").
		Set(FieldBody, "The bartender looks the grasshopper up and down.").
		Set(FieldAuthor, "madzkaleel").
		Set(FieldURL, "http://example.com/r/Jokes/abc").
		Set(FieldAdult, false).
		Set(FieldUps, float64(17)).
		Set(FieldDowns, float64(19)).
		Set(FieldCreated, 1310500570.0)

	c, err := Normalize(f, testRaw(), "Reddit Jokes Group")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if c.Title != "Rich man, Poor man" {
		t.Errorf("expected trimmed title, got %q", c.Title)
	}
	if c.ExternalID != "t3_abc" {
		t.Errorf("unexpected external id %q", c.ExternalID)
	}
	if c.Source != "Reddit Jokes Group" {
		t.Errorf("unexpected source %q", c.Source)
	}
	if c.Ups != 17 || c.Downs != 19 {
		t.Errorf("unexpected votes %d/%d", c.Ups, c.Downs)
	}
	if !c.CreatedAt.Equal(time.Unix(1310500570, 0)) {
		t.Errorf("unexpected created time %v", c.CreatedAt)
	}
	if c.CreatedAt.Location() != time.UTC {
		t.Errorf("created time not UTC: %v", c.CreatedAt.Location())
	}
	if c.ContentType != "application/json" || c.Charset != "utf-8" {
		t.Errorf("transport metadata not copied: %+v", c)
	}
	if !c.DownloadedAt.Equal(testRaw().RetrievedAt) {
		t.Errorf("unexpected download time %v", c.DownloadedAt)
	}
	if c.TitleHash != Hash("Rich man, Poor man") {
		t.Errorf("title hash mismatch")
	}
	if c.ContentHash != Hash("The bartender looks the grasshopper up and down.") {
		t.Errorf("content hash mismatch")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	f := Fields{}.Set(FieldTitle, "Title").Set(FieldBody, "Body")

	c, err := Normalize(f, testRaw(), "Sickipedia Jokes")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if c.Author != "" || c.Ups != 0 || c.Downs != 0 || c.Adult {
		t.Errorf("optional fields should default, got %+v", c)
	}
	if !c.CreatedAt.Equal(testRaw().RetrievedAt) {
		t.Errorf("created time should fall back to retrieval time, got %v", c.CreatedAt)
	}
	if c.URL != "http://example.com/page" {
		t.Errorf("url should fall back to the fetched page, got %q", c.URL)
	}
}

func TestNormalizeIgnoresSuppliedHashes(t *testing.T) {
	f := Fields{}.
		Set(FieldTitle, "Title").
		Set(FieldBody, "Body").
		Set("title_hash", "spoofed").
		Set("content_hash", "spoofed")

	c, err := Normalize(f, testRaw(), "x")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if c.TitleHash == "spoofed" || c.ContentHash == "spoofed" {
		t.Error("hashes must be computed, not copied from the source")
	}
}

func TestNormalizeRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		f     Fields
		field string
	}{
		{"missing title", Fields{}.Set(FieldBody, "Body"), FieldTitle},
		{"blank title", Fields{}.Set(FieldTitle, "   ").Set(FieldBody, "Body"), FieldTitle},
		{"missing body", Fields{}.Set(FieldTitle, "Title"), FieldBody},
		{"blank body", Fields{}.Set(FieldTitle, "Title").Set(FieldBody, "\n\t"), FieldBody},
		{"empty bag", Fields{}, FieldTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Normalize(tt.f, testRaw(), "x")
			if c != nil {
				t.Errorf("expected no candidate, got %+v", c)
			}
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Fatalf("expected *MalformedError, got %v", err)
			}
			if me.Field != tt.field {
				t.Errorf("expected missing %s, got %s", tt.field, me.Field)
			}
		})
	}
}

func TestHashDeterminism(t *testing.T) {
	a := Hash("A horse walks into a bar.")
	b := Hash("  A horse walks into a bar.\n")
	if a != b {
		t.Error("hash should ignore surrounding whitespace")
	}
	if a == Hash("A horse walks into a pub.") {
		t.Error("different text should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}

	f := Fields{}.Set(FieldTitle, "T").Set(FieldBody, "A horse walks into a bar.")
	c1, _ := Normalize(f, testRaw(), "one")
	c2, _ := Normalize(f, &fetch.RawFetch{URL: "http://other"}, "two")
	if c1.ContentHash != c2.ContentHash || c1.TitleHash != c2.TitleHash {
		t.Error("hashes must not depend on source or transport")
	}
}

func TestFieldsAccessors(t *testing.T) {
	f := Fields{
		"s":     "x",
		"n":     float64(3),
		"ns":    "42",
		"b":     "true",
		"t":     time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600)),
		"zero":  time.Time{},
		"epoch": int64(0),
	}

	if v, ok := f.String("s"); !ok || v != "x" {
		t.Errorf("String(s) = %q, %v", v, ok)
	}
	if _, ok := f.String("missing"); ok {
		t.Error("String(missing) should report absence")
	}
	if v, ok := f.Int("n"); !ok || v != 3 {
		t.Errorf("Int(n) = %d, %v", v, ok)
	}
	if v, ok := f.Int("ns"); !ok || v != 42 {
		t.Errorf("Int(ns) = %d, %v", v, ok)
	}
	if v, ok := f.Bool("b"); !ok || !v {
		t.Errorf("Bool(b) = %v, %v", v, ok)
	}
	if v, ok := f.Time("t"); !ok || v.Location() != time.UTC || v.Hour() != 23 {
		t.Errorf("Time(t) = %v, %v", v, ok)
	}
	if _, ok := f.Time("zero"); ok {
		t.Error("zero time should report absence")
	}
	if v, ok := f.Time("epoch"); !ok || v.Unix() != 0 {
		t.Errorf("Time(epoch) = %v, %v", v, ok)
	}
}
