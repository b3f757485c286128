package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestClassifyTypeDetectsLeadingKeyword(t *testing.T) {
	cases := map[string]EntryType{
		"select * from users":                     TypeSelect,
		"  SELECT 1":                               TypeSelect,
		"insert into t values (1)":                 TypeInsert,
		"UPDATE t SET a = 1":                       TypeUpdate,
		"delete from t where a = 1":                TypeDelete,
		"create table t (a int)":                   TypeDDL,
		"ALTER TABLE t ADD COLUMN b":                TypeDDL,
		"drop table t":                              TypeDDL,
		"explain select 1":                          TypeQuery,
		"with cte as (select 1) select *from cte":   TypeQuery,
	}
	for sql, want := range cases {
		if got := ClassifyType(sql); got != want {
			t.Errorf("ClassifyType(%q) = %v, want %v", sql, got, want)
		}
	}
}

func TestAppendEvictsOldestOverLimit(t *testing.T) {
	l := NewLog(3)
	base := time.Unix(1000, 0)
	l.Append("select 1", base)
	l.Append("select 2", base.Add(time.Second))
	l.Append("select 3", base.Add(2*time.Second))
	l.Append("select 4", base.Add(3*time.Second))

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries after eviction, got %d", len(entries))
	}
	if entries[0].SQL != "select 2" {
		t.Fatalf("expected oldest entry evicted, first = %q", entries[0].SQL)
	}
}

func TestSetLimitEvictsImmediately(t *testing.T) {
	l := NewLog(10)
	base := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		l.Append("select 1", base)
	}
	l.SetLimit(2)
	if l.Len() != 2 {
		t.Fatalf("expected immediate eviction to 2, got %d", l.Len())
	}
}

func TestSaveLoadRoundtripAndMode(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(10)
	base := time.Unix(1000, 0).UTC()
	l.Append("select 1", base)
	l.Append("update t set a=1", base.Add(time.Second))

	if err := l.Save(dir, "conn1"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(FilePath(dir, "conn1"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := Load(dir, "conn1", 10)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entries := got.Entries()
	if len(entries) != 2 || entries[0].Type != TypeSelect || entries[1].Type != TypeUpdate {
		t.Fatalf("unexpected roundtrip: %+v", entries)
	}
	if !entries[0].Timestamp.Equal(base) {
		t.Fatalf("timestamp mismatch: %v != %v", entries[0].Timestamp, base)
	}
}

func TestLoadMissingFileReturnsEmptyLog(t *testing.T) {
	dir := t.TempDir()
	l, err := Load(dir, "nope", 5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty log, got %d entries", l.Len())
	}
}

func TestLimitsConfigResolvesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	yamlDoc := "default: 100\nper_connection:\n  conn1: 50\n"
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadLimitsConfig(path)
	if err != nil {
		t.Fatalf("LoadLimitsConfig: %v", err)
	}
	if got := cfg.LimitFor("conn1"); got != 50 {
		t.Fatalf("LimitFor(conn1) = %d, want 50", got)
	}
	if got := cfg.LimitFor("conn2"); got != 100 {
		t.Fatalf("LimitFor(conn2) = %d, want 100 (default)", got)
	}
}

func TestLoadLimitsConfigMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := LoadLimitsConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadLimitsConfig: %v", err)
	}
	if cfg.LimitFor("anything") != DefaultLimit {
		t.Fatalf("expected DefaultLimit fallback, got %d", cfg.LimitFor("anything"))
	}
}
