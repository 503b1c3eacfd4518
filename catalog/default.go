package catalog

// Default returns the builtin catalog shipped with the platform. It is
// used when no catalog file is configured and by tests that need a
// realistic fixture.
//
// Engine bindings mirror the runtime images that are actually published:
// every engine is a binding of either AFL or libFuzzer for one or more
// languages (atheris for python, jazzer for java, cargo-fuzz and afl.rs
// for rust, go-fuzz-libfuzzer for go).
func Default() *Catalog {
	langs := []Language{
		{ID: "go", DisplayName: "Go"},
		{ID: "cpp", DisplayName: "C/C++"},
		{ID: "rust", DisplayName: "Rust"},
		{ID: "java", DisplayName: "Java"},
		{ID: "swift", DisplayName: "Swift"},
		{ID: "python", DisplayName: "Python"},
	}

	engines := []Engine{
		{ID: "afl", DisplayName: "AFL++", Langs: []string{"cpp"}},
		{ID: "afl.rs", DisplayName: "afl.rs", Langs: []string{"rust"}},
		{ID: "libfuzzer", DisplayName: "libFuzzer", Langs: []string{"cpp", "swift"}},
		{ID: "jazzer", DisplayName: "Jazzer", Langs: []string{"java"}},
		{ID: "atheris", DisplayName: "Atheris", Langs: []string{"python"}},
		{ID: "cargo-fuzz", DisplayName: "cargo-fuzz", Langs: []string{"rust"}},
		{ID: "go-fuzz-libfuzzer", DisplayName: "go-fuzz (libFuzzer mode)", Langs: []string{"go"}},
	}

	images := []Image{
		{
			ID:          "ubuntu-18.04",
			Name:        "Ubuntu 18.04 LTS",
			Description: "Legacy toolchain image: C/C++ engines only",
			Status:      StatusReady,
			Engines:     []string{"afl", "libfuzzer"},
		},
		{
			ID:          "ubuntu-20.04",
			Name:        "Ubuntu 20.04 LTS",
			Description: "Default runtime image with all engine toolchains",
			Status:      StatusReady,
			Engines: []string{
				"afl", "afl.rs", "libfuzzer", "jazzer",
				"atheris", "cargo-fuzz", "go-fuzz-libfuzzer",
			},
		},
		{
			ID:          "ubuntu-22.04",
			Name:        "Ubuntu 22.04 LTS",
			Description: "Current runtime image with all engine toolchains",
			Status:      StatusReady,
			Engines: []string{
				"afl", "afl.rs", "libfuzzer", "jazzer",
				"atheris", "cargo-fuzz", "go-fuzz-libfuzzer",
			},
		},
	}

	c, err := New(langs, engines, images)
	if err != nil {
		// Unreachable for the builtin definition (programming error).
		panic("catalog: builtin catalog failed validation: " + err.Error())
	}
	return c
}
