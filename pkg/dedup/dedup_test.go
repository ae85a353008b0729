package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/elonfeng/jokemachine/pkg/record"
)

type fakeLookup struct {
	titles   map[string]bool
	contents map[string]bool
	err      error
}

func (f *fakeLookup) FindByTitleHash(_ context.Context, hash string) ([]record.Stored, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.titles[hash] {
		return []record.Stored{{ID: "t"}}, nil
	}
	return nil, nil
}

func (f *fakeLookup) FindByContentHash(_ context.Context, hash string) ([]record.Stored, error) {
	if f.contents[hash] {
		return []record.Stored{{ID: "c"}}, nil
	}
	return nil, nil
}

func candidate(title, body string) *record.Candidate {
	return &record.Candidate{
		Title:       title,
		Content:     body,
		TitleHash:   record.Hash(title),
		ContentHash: record.Hash(body),
	}
}

func TestIsDuplicateTable(t *testing.T) {
	stored := &fakeLookup{
		titles:   map[string]bool{record.Hash("Known title"): true},
		contents: map[string]bool{record.Hash("Known body"): true},
	}

	tests := []struct {
		name      string
		c         *record.Candidate
		verdict   Verdict
		duplicate bool
	}{
		{"new title, new content", candidate("Fresh title", "Fresh body"), New, false},
		{"new title, known content", candidate("Fresh title", "Known body"), SameContent, true},
		{"known title, new content", candidate("Known title", "Fresh body"), Variant, false},
		{"known title, known content", candidate("Known title", "Known body"), SameJoke, true},
		{"known content after trimming", candidate("Other", "  Known body\n"), SameContent, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Check(context.Background(), stored, tt.c)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if v != tt.verdict {
				t.Errorf("expected %s, got %s", tt.verdict, v)
			}
			dup, err := IsDuplicate(context.Background(), stored, tt.c)
			if err != nil {
				t.Fatalf("IsDuplicate failed: %v", err)
			}
			if dup != tt.duplicate {
				t.Errorf("expected duplicate=%v, got %v", tt.duplicate, dup)
			}
		})
	}
}

func TestIsDuplicateLookupError(t *testing.T) {
	boom := errors.New("boom")
	_, err := IsDuplicate(context.Background(), &fakeLookup{err: boom}, candidate("a", "b"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}

func TestBatchAdmit(t *testing.T) {
	b := NewBatch(&fakeLookup{})
	ctx := context.Background()

	steps := []struct {
		c       *record.Candidate
		verdict Verdict
	}{
		{candidate("One", "First joke"), New},
		{candidate("Two", "First joke"), SameContent},
		{candidate("One", "Second joke"), Variant},
		{candidate("One", "Second joke"), SameJoke},
		{candidate("Three", "Third joke"), New},
	}

	for i, s := range steps {
		v, err := b.Admit(ctx, s.c)
		if err != nil {
			t.Fatalf("step %d: Admit failed: %v", i, err)
		}
		if v != s.verdict {
			t.Errorf("step %d: expected %s, got %s", i, s.verdict, v)
		}
	}
}

func TestBatchSeesStore(t *testing.T) {
	b := NewBatch(&fakeLookup{contents: map[string]bool{record.Hash("Stored"): true}})
	v, err := b.Admit(context.Background(), candidate("New", "Stored"))
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !v.Duplicate() {
		t.Errorf("expected duplicate, got %s", v)
	}
	v, _ = b.Admit(context.Background(), candidate("New", "Other"))
	if v != New {
		t.Errorf("rejected candidates must not be remembered, got %s", v)
	}
}
