// Package catalog provides the immutable registry of supported fuzzing
// languages, engines, and runtime images.
//
// A Catalog is constructed once at process start and is read-only for the
// process lifetime. All cross-references are validated at construction
// time (the load-time closure check): an Engine may only reference known
// Languages and an Image may only reference known Engines. Query methods
// never re-validate.
package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by New and LoadFile. All of them are fatal:
// a process must refuse to serve on a catalog that fails the closure check.
var (
	ErrDuplicateID     = errors.New("catalog: duplicate identifier")
	ErrUnknownLanguage = errors.New("catalog: engine references unknown language")
	ErrUnknownEngine   = errors.New("catalog: image references unknown engine")
	ErrEmptyID         = errors.New("catalog: empty identifier")
)

// ImageStatus describes whether a runtime image may be used to run jobs.
type ImageStatus string

const (
	// StatusReady means the image is built, pushed, and usable.
	StatusReady ImageStatus = "Ready"
	// StatusNotReady means the image exists in the catalog but is not
	// yet usable (still building or failed verification).
	StatusNotReady ImageStatus = "NotReady"
	// StatusDeprecated means the image must no longer be selected.
	StatusDeprecated ImageStatus = "Deprecated"
)

// Language is a programming language fuzzing targets can be written in.
type Language struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
}

// Engine is a fuzzing engine binding (libfuzzer, afl, ...). Langs lists
// the language ids the engine can instrument.
type Engine struct {
	ID          string   `yaml:"id" json:"id"`
	DisplayName string   `yaml:"display_name" json:"display_name"`
	Langs       []string `yaml:"langs" json:"langs"`
}

// Supports reports whether the engine can fuzz targets in the language.
func (e Engine) Supports(langID string) bool {
	for _, l := range e.Langs {
		if l == langID {
			return true
		}
	}
	return false
}

// Image is a prebuilt runtime image workers run fuzzing jobs in.
// Engines lists the engine ids the image has toolchains for.
type Image struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Status      ImageStatus `yaml:"status" json:"status"`
	Engines     []string    `yaml:"engines" json:"engines"`
}

// Supports reports whether the image carries a toolchain for the engine.
func (i Image) Supports(engineID string) bool {
	for _, e := range i.Engines {
		if e == engineID {
			return true
		}
	}
	return false
}

// Catalog is the validated, read-only registry. Safe for concurrent use:
// nothing mutates it after New returns.
type Catalog struct {
	langs   []Language
	engines []Engine
	images  []Image

	langByID   map[string]Language
	engineByID map[string]Engine
	imageByID  map[string]Image
}

// New builds a Catalog and runs the closure check. It fails if any
// identifier is empty or duplicated within its set, if any engine lists
// an unknown language, or if any image lists an unknown engine.
func New(langs []Language, engines []Engine, images []Image) (*Catalog, error) {
	c := &Catalog{
		langs:      langs,
		engines:    engines,
		images:     images,
		langByID:   make(map[string]Language, len(langs)),
		engineByID: make(map[string]Engine, len(engines)),
		imageByID:  make(map[string]Image, len(images)),
	}

	for _, l := range langs {
		if l.ID == "" {
			return nil, fmt.Errorf("%w: language %q", ErrEmptyID, l.DisplayName)
		}
		if _, dup := c.langByID[l.ID]; dup {
			return nil, fmt.Errorf("%w: language %q", ErrDuplicateID, l.ID)
		}
		c.langByID[l.ID] = l
	}

	for _, e := range engines {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: engine %q", ErrEmptyID, e.DisplayName)
		}
		if _, dup := c.engineByID[e.ID]; dup {
			return nil, fmt.Errorf("%w: engine %q", ErrDuplicateID, e.ID)
		}
		for _, langID := range e.Langs {
			if _, ok := c.langByID[langID]; !ok {
				return nil, fmt.Errorf("%w: engine %q lists %q", ErrUnknownLanguage, e.ID, langID)
			}
		}
		c.engineByID[e.ID] = e
	}

	for _, img := range images {
		if img.ID == "" {
			return nil, fmt.Errorf("%w: image %q", ErrEmptyID, img.Name)
		}
		if _, dup := c.imageByID[img.ID]; dup {
			return nil, fmt.Errorf("%w: image %q", ErrDuplicateID, img.ID)
		}
		for _, engineID := range img.Engines {
			if _, ok := c.engineByID[engineID]; !ok {
				return nil, fmt.Errorf("%w: image %q lists %q", ErrUnknownEngine, img.ID, engineID)
			}
		}
		c.imageByID[img.ID] = img
	}

	return c, nil
}

// Languages returns all languages in catalog insertion order.
func (c *Catalog) Languages() []Language {
	out := make([]Language, len(c.langs))
	copy(out, c.langs)
	return out
}

// Engines returns all engines in catalog insertion order.
func (c *Catalog) Engines() []Engine {
	out := make([]Engine, len(c.engines))
	copy(out, c.engines)
	return out
}

// Images returns all images in catalog insertion order.
func (c *Catalog) Images() []Image {
	out := make([]Image, len(c.images))
	copy(out, c.images)
	return out
}

// Language looks up a language by id.
func (c *Catalog) Language(langID string) (Language, bool) {
	l, ok := c.langByID[langID]
	return l, ok
}

// Engine looks up an engine by id.
func (c *Catalog) Engine(engineID string) (Engine, bool) {
	e, ok := c.engineByID[engineID]
	return e, ok
}

// Image looks up an image by id.
func (c *Catalog) Image(imageID string) (Image, bool) {
	img, ok := c.imageByID[imageID]
	return img, ok
}
