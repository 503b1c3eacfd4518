package resolve_test

import (
	"testing"

	"github.com/Bondifuzz/api-gateway/catalog"
	"github.com/Bondifuzz/api-gateway/resolve"
)

func testResolver(t *testing.T) *resolve.Resolver {
	t.Helper()
	return resolve.New(catalog.Default())
}

func TestResolve_ExplicitImage(t *testing.T) {
	r := testResolver(t)

	triple, rej := r.Resolve("cpp", "libfuzzer", "ubuntu-18.04")
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}

	want := resolve.Triple{Language: "cpp", Engine: "libfuzzer", Image: "ubuntu-18.04"}
	if triple != want {
		t.Errorf("Resolve() = %+v, want %+v", triple, want)
	}
}

func TestResolve_ImplicitImagePicksFirstReady(t *testing.T) {
	r := testResolver(t)

	// Only ubuntu-20.04 and ubuntu-22.04 carry atheris; both are Ready,
	// so insertion order picks 20.04.
	triple, rej := r.Resolve("python", "atheris", "")
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if triple.Image != "ubuntu-20.04" {
		t.Errorf("implicit image = %q, want %q", triple.Image, "ubuntu-20.04")
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r := testResolver(t)

	first, rej := r.Resolve("rust", "cargo-fuzz", "")
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	for range 10 {
		next, rej := r.Resolve("rust", "cargo-fuzz", "")
		if rej != nil {
			t.Fatalf("unexpected rejection: %v", rej)
		}
		if next != first {
			t.Fatalf("Resolve() not deterministic: %+v != %+v", next, first)
		}
	}
}

func TestResolve_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		lang       string
		engine     string
		image      string
		wantReason resolve.Reason
	}{
		{"unknown language", "haskell", "libfuzzer", "", resolve.ReasonUnknownLanguage},
		{"unknown engine", "cpp", "honggfuzz", "", resolve.ReasonUnknownEngine},
		{"unknown image", "cpp", "libfuzzer", "alpine-3.19", resolve.ReasonUnknownImage},
		{"afl does not fuzz python", "python", "afl", "", resolve.ReasonLanguageNotSupportedByEngine},
		{"jazzer image mismatch", "java", "jazzer", "ubuntu-18.04", resolve.ReasonEngineNotSupportedByImage},
	}

	r := testResolver(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rej := r.Resolve(tt.lang, tt.engine, tt.image)
			if rej == nil {
				t.Fatal("expected rejection, got success")
			}
			if rej.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", rej.Reason, tt.wantReason)
			}
			if rej.Error() == "" {
				t.Error("rejection message must not be empty")
			}
		})
	}
}

func TestResolve_ImageNotReady(t *testing.T) {
	cat, err := catalog.New(
		[]catalog.Language{{ID: "cpp", DisplayName: "C/C++"}},
		[]catalog.Engine{{ID: "libfuzzer", DisplayName: "libFuzzer", Langs: []string{"cpp"}}},
		[]catalog.Image{
			{ID: "img-building", Name: "building", Status: catalog.StatusNotReady, Engines: []string{"libfuzzer"}},
			{ID: "img-old", Name: "old", Status: catalog.StatusDeprecated, Engines: []string{"libfuzzer"}},
		},
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	r := resolve.New(cat)

	_, rej := r.Resolve("cpp", "libfuzzer", "img-building")
	if rej == nil || rej.Reason != resolve.ReasonImageNotReady {
		t.Errorf("explicit not-ready image: got %v, want %q", rej, resolve.ReasonImageNotReady)
	}

	_, rej = r.Resolve("cpp", "libfuzzer", "img-old")
	if rej == nil || rej.Reason != resolve.ReasonImageNotReady {
		t.Errorf("explicit deprecated image: got %v, want %q", rej, resolve.ReasonImageNotReady)
	}

	// No Ready image exists at all, so implicit selection fails too.
	_, rej = r.Resolve("cpp", "libfuzzer", "")
	if rej == nil || rej.Reason != resolve.ReasonNoReadyImage {
		t.Errorf("implicit selection: got %v, want %q", rej, resolve.ReasonNoReadyImage)
	}
}

func TestResolve_ImplicitSkipsNotReady(t *testing.T) {
	cat, err := catalog.New(
		[]catalog.Language{{ID: "python", DisplayName: "Python"}},
		[]catalog.Engine{{ID: "atheris", DisplayName: "Atheris", Langs: []string{"python"}}},
		[]catalog.Image{
			{ID: "img-a", Name: "a", Status: catalog.StatusNotReady, Engines: []string{"atheris"}},
			{ID: "img-b", Name: "b", Status: catalog.StatusReady, Engines: []string{"atheris"}},
		},
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	triple, rej := resolve.New(cat).Resolve("python", "atheris", "")
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if triple.Image != "img-b" {
		t.Errorf("implicit image = %q, want %q (first Ready)", triple.Image, "img-b")
	}
}
