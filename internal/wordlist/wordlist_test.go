package wordlist

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
)

const testdataPath = "testdata/wordlist.txt"

func TestLoad(t *testing.T) {
	l, err := Load(testdataPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := l.Size(); got != WordCount {
		t.Fatalf("Size() = %d, want %d", got, WordCount)
	}
}

func TestLoadRejectsWrongCount(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/short.txt"
	if err := writeLines(path, []string{"11111 apple", "11112 bear"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load: want error for short wordlist, got nil")
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.txt"
	lines := make([]string, 0, WordCount)
	for i := 0; i < WordCount-1; i++ {
		lines = append(lines, "11111 word")
	}
	lines = append(lines, "not-two-fields")
	if err := writeLines(path, lines); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load: want error for malformed line, got nil")
	}
}

func TestGenerateProducesThreeKnownWords(t *testing.T) {
	l, err := Load(testdataPath)
	if err != nil {
		t.Fatal(err)
	}
	id, err := l.Generate(DefaultWordCount)
	if err != nil {
		t.Fatal(err)
	}
	if !l.ValidateFormat(id) {
		t.Fatalf("Generate produced an id that fails its own validator: %q", id)
	}
}

func TestValidateFormat(t *testing.T) {
	l, err := Load(testdataPath)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"onlyoneword", false},
		{"one-two", false},
		{"one-two-three-four", false},
		{"not-a-real-word-xyz", false},
	}
	for _, c := range cases {
		if got := l.ValidateFormat(c.id); got != c.want {
			t.Errorf("ValidateFormat(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

type fakeExister struct {
	mu       sync.Mutex
	occupied map[string]bool
}

func (f *fakeExister) Exists(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.occupied[id], nil
}

func TestGenerateUniqueRetriesOnCollision(t *testing.T) {
	l, err := Load(testdataPath)
	if err != nil {
		t.Fatal(err)
	}
	id, err := l.Generate(DefaultWordCount)
	if err != nil {
		t.Fatal(err)
	}
	ex := &fakeExister{occupied: map[string]bool{id: true}}

	got, err := l.GenerateUnique(ex, DefaultWordCount, DefaultMaxAttempts)
	if err != nil {
		t.Fatalf("GenerateUnique: %v", err)
	}
	if got == id {
		t.Fatalf("GenerateUnique returned the occupied id %q", got)
	}
}

type alwaysOccupied struct{}

func (alwaysOccupied) Exists(id string) (bool, error) { return true, nil }

func TestGenerateUniqueExhaustsAttempts(t *testing.T) {
	l, err := Load(testdataPath)
	if err != nil {
		t.Fatal(err)
	}
	_, err = l.GenerateUnique(alwaysOccupied{}, DefaultWordCount, 3)
	if err == nil {
		t.Fatal("GenerateUnique: want ExhaustedAttemptsError, got nil")
	}
	var exhausted *ExhaustedAttemptsError
	if !errors.As(err, &exhausted) {
		t.Fatalf("GenerateUnique: got %v, want *ExhaustedAttemptsError", err)
	}
}

func writeLines(path string, lines []string) error {
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}
