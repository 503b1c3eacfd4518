package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Bondifuzz/api-gateway/catalog"
)

func validInput() ([]catalog.Language, []catalog.Engine, []catalog.Image) {
	langs := []catalog.Language{
		{ID: "cpp", DisplayName: "C/C++"},
		{ID: "python", DisplayName: "Python"},
	}
	engines := []catalog.Engine{
		{ID: "libfuzzer", DisplayName: "libFuzzer", Langs: []string{"cpp"}},
		{ID: "atheris", DisplayName: "Atheris", Langs: []string{"python"}},
	}
	images := []catalog.Image{
		{
			ID:     "ubuntu-20.04",
			Name:   "Ubuntu 20.04 LTS",
			Status: catalog.StatusReady,
			Engines: []string{
				"libfuzzer", "atheris",
			},
		},
	}
	return langs, engines, images
}

func TestNew_Valid(t *testing.T) {
	langs, engines, images := validInput()

	c, err := catalog.New(langs, engines, images)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(c.Languages()); got != 2 {
		t.Errorf("Languages() len = %d, want 2", got)
	}
	if got := len(c.Engines()); got != 2 {
		t.Errorf("Engines() len = %d, want 2", got)
	}
	if got := len(c.Images()); got != 1 {
		t.Errorf("Images() len = %d, want 1", got)
	}

	e, ok := c.Engine("atheris")
	if !ok {
		t.Fatal("Engine(atheris) not found")
	}
	if !e.Supports("python") {
		t.Error("atheris should support python")
	}
	if e.Supports("cpp") {
		t.Error("atheris should not support cpp")
	}
}

func TestNew_ClosureCheck(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*[]catalog.Language, *[]catalog.Engine, *[]catalog.Image)
		wantErr error
	}{
		{
			name: "duplicate language id",
			mutate: func(l *[]catalog.Language, _ *[]catalog.Engine, _ *[]catalog.Image) {
				*l = append(*l, catalog.Language{ID: "cpp", DisplayName: "C++ again"})
			},
			wantErr: catalog.ErrDuplicateID,
		},
		{
			name: "duplicate engine id",
			mutate: func(_ *[]catalog.Language, e *[]catalog.Engine, _ *[]catalog.Image) {
				*e = append(*e, catalog.Engine{ID: "libfuzzer", DisplayName: "dup"})
			},
			wantErr: catalog.ErrDuplicateID,
		},
		{
			name: "duplicate image id",
			mutate: func(_ *[]catalog.Language, _ *[]catalog.Engine, i *[]catalog.Image) {
				*i = append(*i, catalog.Image{ID: "ubuntu-20.04", Name: "dup", Status: catalog.StatusReady})
			},
			wantErr: catalog.ErrDuplicateID,
		},
		{
			name: "engine references unknown language",
			mutate: func(_ *[]catalog.Language, e *[]catalog.Engine, _ *[]catalog.Image) {
				*e = append(*e, catalog.Engine{ID: "jazzer", DisplayName: "Jazzer", Langs: []string{"java"}})
			},
			wantErr: catalog.ErrUnknownLanguage,
		},
		{
			name: "image references unknown engine",
			mutate: func(_ *[]catalog.Language, _ *[]catalog.Engine, i *[]catalog.Image) {
				*i = append(*i, catalog.Image{
					ID: "ubuntu-22.04", Name: "Ubuntu 22.04",
					Status:  catalog.StatusReady,
					Engines: []string{"honggfuzz"},
				})
			},
			wantErr: catalog.ErrUnknownEngine,
		},
		{
			name: "empty language id",
			mutate: func(l *[]catalog.Language, _ *[]catalog.Engine, _ *[]catalog.Image) {
				*l = append(*l, catalog.Language{DisplayName: "nameless"})
			},
			wantErr: catalog.ErrEmptyID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			langs, engines, images := validInput()
			tt.mutate(&langs, &engines, &images)

			_, err := catalog.New(langs, engines, images)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefault_HoldsFixtures(t *testing.T) {
	c := catalog.Default()

	// afl is a cpp-only engine.
	afl, ok := c.Engine("afl")
	if !ok {
		t.Fatal("Engine(afl) not found")
	}
	if afl.Supports("python") {
		t.Error("afl must not support python")
	}
	if !afl.Supports("cpp") {
		t.Error("afl must support cpp")
	}

	// ubuntu-18.04 carries libfuzzer but not atheris.
	img, ok := c.Image("ubuntu-18.04")
	if !ok {
		t.Fatal("Image(ubuntu-18.04) not found")
	}
	if !img.Supports("libfuzzer") {
		t.Error("ubuntu-18.04 must carry libfuzzer")
	}
	if img.Supports("atheris") {
		t.Error("ubuntu-18.04 must not carry atheris")
	}

	// Insertion order is 18.04, 20.04, 22.04.
	images := c.Images()
	want := []string{"ubuntu-18.04", "ubuntu-20.04", "ubuntu-22.04"}
	if len(images) != len(want) {
		t.Fatalf("Images() len = %d, want %d", len(images), len(want))
	}
	for i, id := range want {
		if images[i].ID != id {
			t.Errorf("Images()[%d].ID = %q, want %q", i, images[i].ID, id)
		}
	}
}

func TestLoadFile(t *testing.T) {
	const def = `
languages:
  - id: rust
    display_name: Rust
engines:
  - id: cargo-fuzz
    display_name: cargo-fuzz
    langs: [rust]
images:
  - id: ubuntu-22.04
    name: Ubuntu 22.04 LTS
    status: Ready
    engines: [cargo-fuzz]
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(def), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	c, err := catalog.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	img, ok := c.Image("ubuntu-22.04")
	if !ok {
		t.Fatal("Image(ubuntu-22.04) not found")
	}
	if img.Status != catalog.StatusReady {
		t.Errorf("Status = %q, want %q", img.Status, catalog.StatusReady)
	}
	if !img.Supports("cargo-fuzz") {
		t.Error("ubuntu-22.04 must carry cargo-fuzz")
	}
}

func TestLoadFile_InvalidReference(t *testing.T) {
	const def = `
languages:
  - id: go
    display_name: Go
engines:
  - id: go-fuzz-libfuzzer
    display_name: go-fuzz
    langs: [haskell]
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(def), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := catalog.LoadFile(path)
	if !errors.Is(err, catalog.ErrUnknownLanguage) {
		t.Errorf("LoadFile() error = %v, want %v", err, catalog.ErrUnknownLanguage)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := catalog.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
