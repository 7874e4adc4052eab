package letters

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testTree() *Tree {
	return NewTree(Node{
		"a": {"b": {"c": nil}, "d": nil},
		"b": nil,
	})
}

func TestCombinationsAfterRoot(t *testing.T) {
	got := testTree().CombinationsAfter(Root)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("root combinations = %v, want %v", got, want)
	}
}

func TestCombinationsAfterAddsOneLetter(t *testing.T) {
	tr := testTree()
	got := tr.CombinationsAfter("a")
	want := []string{"ab", "ad"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("combinations after a = %v, want %v", got, want)
	}
	got = tr.CombinationsAfter("ab")
	want = []string{"abc"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("combinations after ab = %v, want %v", got, want)
	}
}

func TestCombinationsAfterUnknownPrefix(t *testing.T) {
	tr := testTree()
	if got := tr.CombinationsAfter("zz"); got != nil {
		t.Fatalf("combinations after zz = %v, want nil", got)
	}
	if got := tr.CombinationsAfter("abc"); got != nil {
		t.Fatalf("combinations after leaf = %v, want nil", got)
	}
}

func TestCombinationsAfterNormalizesInput(t *testing.T) {
	got := testTree().CombinationsAfter("  AB ")
	want := []string{"abc"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("combinations after ' AB ' = %v, want %v", got, want)
	}
}

func TestEscalatePicksNextTier(t *testing.T) {
	tr := testTree()
	for i := 0; i < 20; i++ {
		next := tr.Escalate("a")
		if next != "ab" && next != "ad" {
			t.Fatalf("escalate from a = %q", next)
		}
	}
}

func TestEscalateAtMaxDepth(t *testing.T) {
	tr := testTree()
	if got := tr.Escalate("abc"); got != "abc" {
		t.Fatalf("escalate at leaf = %q, want abc", got)
	}
	if got := tr.Escalate("b"); got != "b" {
		t.Fatalf("escalate at leaf = %q, want b", got)
	}
}

func writeTreeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "letters.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write tree file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTreeFile(t, "a:\n  b:\nc:\n")
	tr, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"a", "c"}
	if got := tr.CombinationsAfter(Root); !reflect.DeepEqual(got, want) {
		t.Fatalf("root combinations = %v, want %v", got, want)
	}
}

func TestLoadRejectsBadKeys(t *testing.T) {
	path := writeTreeFile(t, "ab:\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for multi-letter key")
	}
	path = writeTreeFile(t, "")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty tree")
	}
}
