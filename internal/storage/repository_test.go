package storage

import (
	"context"
	"strings"
	"testing"

	"menuscrape/internal/records"
)

type fakeRepo struct{ cfg Config }

func (f *fakeRepo) Close()                             {}
func (f *fakeRepo) EnsureSchema(context.Context) error { return nil }
func (f *fakeRepo) ReplaceAll(_ context.Context, c records.Corpus) (int64, error) {
	return int64(len(c)), nil
}
func (f *fakeRepo) LoadAll(context.Context) (records.Corpus, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	Register("fake-registry-test", func(_ context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{cfg: cfg}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "fake-registry-test", DSN: "x"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := repo.(*fakeRepo).cfg.TableName(); got != ProductsTable {
		t.Fatalf("default table = %q", got)
	}

	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	if _, err := New(context.Background(), Config{Kind: "nope"}); err == nil || !strings.Contains(err.Error(), "fake-registry-test") {
		t.Fatalf("expected unsupported-kind error listing registered kinds, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate Register should panic")
		}
	}()
	Register("fake-registry-test", func(context.Context, Config) (Repository, error) { return nil, nil })
}

func TestProductRows_DedupesAndOrders(t *testing.T) {
	t.Parallel()

	c := records.Corpus{
		{Name: "Б", Nutrition: records.Nutrition{Salt: "1 г"}},
		{Name: ""},
		{Name: "А", Portion: "100 г"},
		{Name: "Б", Portion: "дубль"},
	}
	rows := ProductRows(c)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if len(rows[0]) != len(ColumnNames()) {
		t.Fatalf("row width %d != column count %d", len(rows[0]), len(ColumnNames()))
	}
	if rows[0][0] != int64(0) || rows[0][1] != "Б" || rows[0][9] != "1 г" {
		t.Fatalf("unexpected first row: %v", rows[0])
	}
	if rows[1][0] != int64(1) || rows[1][3] != "100 г" {
		t.Fatalf("unexpected second row: %v", rows[1])
	}

	var pos int64
	var r records.ProductRecord
	if len(ScanTargets(&pos, &r)) != len(ColumnNames()) {
		t.Fatalf("scan targets do not match columns")
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 7)
	got := Chunk(rows, 3)
	if len(got) != 3 || len(got[0]) != 3 || len(got[2]) != 1 {
		t.Fatalf("unexpected chunks: %d", len(got))
	}
	if Chunk(nil, 3) != nil {
		t.Fatalf("expected no chunks for no rows")
	}
}
