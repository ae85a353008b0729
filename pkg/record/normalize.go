package record

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/elonfeng/jokemachine/pkg/fetch"
)

// Hash returns the identity digest of s after trimming surrounding space.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(s)))
	return hex.EncodeToString(sum[:])
}

// Normalize maps an adapter's field bag onto a Candidate tagged with source.
// Hashes are always computed here, never taken from the bag. A missing title
// or body yields a *MalformedError.
func Normalize(f Fields, raw *fetch.RawFetch, source string) (*Candidate, error) {
	title, _ := f.String(FieldTitle)
	body, _ := f.String(FieldBody)
	url, _ := f.String(FieldURL)
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	url = strings.TrimSpace(url)

	if url == "" && raw != nil {
		url = raw.URL
	}
	if title == "" {
		return nil, &MalformedError{Field: FieldTitle, URL: url}
	}
	if body == "" {
		return nil, &MalformedError{Field: FieldBody, Title: title, URL: url}
	}

	c := &Candidate{
		Source:      source,
		Title:       title,
		Content:     body,
		URL:         url,
		TitleHash:   Hash(title),
		ContentHash: Hash(body),
	}
	c.ExternalID, _ = f.String(FieldExternalID)
	if author, ok := f.String(FieldAuthor); ok {
		c.Author = strings.TrimSpace(author)
	}
	c.Adult, _ = f.Bool(FieldAdult)
	c.Ups, _ = f.Int(FieldUps)
	c.Downs, _ = f.Int(FieldDowns)

	if raw != nil {
		c.ContentType = raw.ContentType
		c.Charset = raw.Charset
		c.ContentEncoding = raw.ContentEncoding
		c.LastModified = raw.LastModified
		c.DownloadedAt = raw.RetrievedAt
	}

	if created, ok := f.Time(FieldCreated); ok {
		c.CreatedAt = created
	} else {
		c.CreatedAt = c.DownloadedAt
	}
	return c, nil
}
