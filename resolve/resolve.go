// Package resolve validates and resolves requested (language, engine,
// image) combinations against the catalog before a job may be dispatched.
//
// Resolution is a pure function of catalog state and input: no side
// effects, and a deterministic tie-break (catalog insertion order) when
// the image is chosen implicitly. Failures are reported as a tagged
// Rejection rather than a generic error so callers can distinguish every
// outcome and never retry bad input.
package resolve

import (
	"fmt"

	"github.com/Bondifuzz/api-gateway/catalog"
)

// Reason enumerates why a requested combination was rejected.
type Reason string

const (
	ReasonUnknownLanguage              Reason = "unknown_language"
	ReasonUnknownEngine                Reason = "unknown_engine"
	ReasonUnknownImage                 Reason = "unknown_image"
	ReasonLanguageNotSupportedByEngine Reason = "language_not_supported_by_engine"
	ReasonEngineNotSupportedByImage    Reason = "engine_not_supported_by_image"
	ReasonImageNotReady                Reason = "image_not_ready"
	ReasonNoReadyImage                 Reason = "no_ready_image"
)

// Rejection is the typed outcome for an invalid request. It carries the
// identifiers from the request so the message can name the offender.
// Rejections are caller errors: they must never be retried automatically.
type Rejection struct {
	Reason   Reason
	Language string
	Engine   string
	Image    string
}

// Error implements the error interface with a user-presentable message.
func (r *Rejection) Error() string {
	switch r.Reason {
	case ReasonUnknownLanguage:
		return fmt.Sprintf("unknown language %q", r.Language)
	case ReasonUnknownEngine:
		return fmt.Sprintf("unknown engine %q", r.Engine)
	case ReasonUnknownImage:
		return fmt.Sprintf("unknown image %q", r.Image)
	case ReasonLanguageNotSupportedByEngine:
		return fmt.Sprintf("engine %q does not support language %q", r.Engine, r.Language)
	case ReasonEngineNotSupportedByImage:
		return fmt.Sprintf("image %q does not support engine %q", r.Image, r.Engine)
	case ReasonImageNotReady:
		return fmt.Sprintf("image %q is not ready", r.Image)
	case ReasonNoReadyImage:
		return fmt.Sprintf("no ready image supports engine %q", r.Engine)
	default:
		return fmt.Sprintf("rejected: %s", r.Reason)
	}
}

// Triple is a validated (language, engine, image) combination, usable to
// run a fuzzing job. It exists only as a derived value and is never
// persisted by this package.
type Triple struct {
	Language string `json:"language"`
	Engine   string `json:"engine"`
	Image    string `json:"image"`
}

// Resolver answers compatibility queries against a fixed catalog.
type Resolver struct {
	cat *catalog.Catalog
}

// New creates a Resolver over the given catalog.
func New(cat *catalog.Catalog) *Resolver {
	return &Resolver{cat: cat}
}

// Resolve validates the requested combination. An empty imageID requests
// implicit selection: the first catalog image (insertion order) that is
// Ready and supports the engine.
func (r *Resolver) Resolve(langID, engineID, imageID string) (Triple, *Rejection) {
	if _, ok := r.cat.Language(langID); !ok {
		return Triple{}, &Rejection{Reason: ReasonUnknownLanguage, Language: langID, Engine: engineID, Image: imageID}
	}

	engine, ok := r.cat.Engine(engineID)
	if !ok {
		return Triple{}, &Rejection{Reason: ReasonUnknownEngine, Language: langID, Engine: engineID, Image: imageID}
	}

	if !engine.Supports(langID) {
		return Triple{}, &Rejection{Reason: ReasonLanguageNotSupportedByEngine, Language: langID, Engine: engineID, Image: imageID}
	}

	if imageID == "" {
		return r.selectImage(langID, engineID)
	}

	img, ok := r.cat.Image(imageID)
	if !ok {
		return Triple{}, &Rejection{Reason: ReasonUnknownImage, Language: langID, Engine: engineID, Image: imageID}
	}
	if img.Status != catalog.StatusReady {
		return Triple{}, &Rejection{Reason: ReasonImageNotReady, Language: langID, Engine: engineID, Image: imageID}
	}
	if !img.Supports(engineID) {
		return Triple{}, &Rejection{Reason: ReasonEngineNotSupportedByImage, Language: langID, Engine: engineID, Image: imageID}
	}

	return Triple{Language: langID, Engine: engineID, Image: imageID}, nil
}

// selectImage picks the first Ready image supporting the engine.
func (r *Resolver) selectImage(langID, engineID string) (Triple, *Rejection) {
	for _, img := range r.cat.Images() {
		if img.Status == catalog.StatusReady && img.Supports(engineID) {
			return Triple{Language: langID, Engine: engineID, Image: img.ID}, nil
		}
	}
	return Triple{}, &Rejection{Reason: ReasonNoReadyImage, Language: langID, Engine: engineID}
}
