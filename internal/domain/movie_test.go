package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }
func boolp(b bool) *bool    { return &b }

func TestMovie_TableName(t *testing.T) {
	if (Movie{}).TableName() != "movies" {
		t.Fatalf("Movie.TableName() = %q; want %q", (Movie{}).TableName(), "movies")
	}
}

func TestMovie_FieldsAndAssign_KeepIdentity(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := Movie{Seq: 7, ID: "m1", Title: "Old", Genre: "Drama", Year: 1990, Rating: 5, IsAvailable: true, CreatedAt: created}

	m.Assign(MovieFields{Title: "New", Genre: "", Year: 2001, Rating: 0, IsAvailable: false})

	if m.ID != "m1" || m.Seq != 7 || !m.CreatedAt.Equal(created) {
		t.Fatalf("identity changed: %+v", m)
	}
	want := MovieFields{Title: "New", Genre: "", Year: 2001, Rating: 0, IsAvailable: false}
	if got := m.Fields(); got != want {
		t.Fatalf("Fields() = %+v; want %+v", got, want)
	}
}

func TestMoviePatch_EmptyLeavesRecordUntouched(t *testing.T) {
	var p MoviePatch
	if !p.IsEmpty() {
		t.Fatalf("zero patch should be empty")
	}
	m := Movie{ID: "x", Title: "T", Genre: "G", Year: 1, Rating: 2, IsAvailable: true}
	before := m
	p.Apply(&m)
	if m != before {
		t.Fatalf("empty patch mutated record: %+v -> %+v", before, m)
	}
	if cols := p.Columns(); len(cols) != 0 {
		t.Fatalf("empty patch columns = %v", cols)
	}
}

func TestMoviePatch_SingleFieldChangesOnlyThatField(t *testing.T) {
	m := Movie{ID: "x", Title: "T", Genre: "G", Year: 1, Rating: 2, IsAvailable: true}
	p := MoviePatch{Rating: intp(9)}
	if p.IsEmpty() {
		t.Fatalf("patch with rating should not be empty")
	}
	p.Apply(&m)
	want := Movie{ID: "x", Title: "T", Genre: "G", Year: 1, Rating: 9, IsAvailable: true}
	if m != want {
		t.Fatalf("got %+v; want %+v", m, want)
	}
}

func TestMoviePatch_ExplicitZeroValuesAreWritten(t *testing.T) {
	m := Movie{Title: "T", Genre: "G", Year: 1999, Rating: 8, IsAvailable: true}
	p := MoviePatch{Title: strp("U"), Genre: strp(""), Year: intp(0), Rating: intp(0), IsAvailable: boolp(false)}
	p.Apply(&m)
	if m.Title != "U" || m.Genre != "" || m.Year != 0 || m.Rating != 0 || m.IsAvailable {
		t.Fatalf("explicit zero values not applied: %+v", m)
	}

	cols := p.Columns()
	if len(cols) != 5 {
		t.Fatalf("expected 5 columns, got %v", cols)
	}
	if cols["is_available"] != false || cols["genre"] != "" || cols["year"] != 0 {
		t.Fatalf("unexpected columns: %v", cols)
	}
}

func TestNormalizeTitle(t *testing.T) {
	if got := NormalizeTitle("  The Matrix \t"); got != "The Matrix" {
		t.Fatalf("NormalizeTitle = %q", got)
	}
	if got := NormalizeTitle("   "); got != "" {
		t.Fatalf("blank title should normalize to empty, got %q", got)
	}
}

func TestMovie_Migration_AllowsDuplicateIDs_AndOrdersBySeq(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Movie{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&Movie{}) {
		t.Fatalf("movies table missing")
	}
	if !m.HasIndex(&Movie{}, "idx_movies_id") {
		t.Fatalf("expected index idx_movies_id")
	}

	now := time.Now().UTC()
	a := &Movie{ID: "dup", Title: "A", Genre: "g", Year: 1, Rating: 1, IsAvailable: false, CreatedAt: now}
	b := &Movie{ID: "dup", Title: "B", Genre: "g", Year: 2, Rating: 2, IsAvailable: true, CreatedAt: now}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("duplicate id must be accepted: %v", err)
	}
	if a.Seq == 0 || b.Seq <= a.Seq {
		t.Fatalf("seq not increasing: a=%d b=%d", a.Seq, b.Seq)
	}

	var got Movie
	if err := db.Where("id = ?", "dup").Order("seq asc").First(&got).Error; err != nil {
		t.Fatalf("first: %v", err)
	}
	if got.Title != "A" {
		t.Fatalf("first match should be A, got %q", got.Title)
	}
	// false must survive the round trip (no column default overriding it)
	if got.IsAvailable {
		t.Fatalf("is_available=false not persisted")
	}
}
