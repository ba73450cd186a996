package processor

import (
	"context"
	"fmt"

	"github.com/cuemby/docpipe/pkg/types"
)

// Result is what a Processor hands back to the Scheduler: the artifacts it
// produced, in caller-significant order, plus any metadata destined for the
// job's ResultData.
type Result struct {
	Artifacts []string
	Metadata  types.ResultData
}

// Processor implements a single job kind. InputPaths are already staged
// under the tenant's upload tree; OutDir is a temp directory the processor
// may write into freely. Process must respect ctx's deadline, including any
// subprocess it spawns.
type Processor interface {
	Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error)
}

// Registry maps a JobKind to the Processor that implements it.
type Registry struct {
	processors map[types.JobKind]Processor
}

// NewRegistry builds the registry with every kind in types.JobKind wired to
// a concrete implementation - pdfcpu-backed in-process processors for the
// PDF-native operations, gosseract for OCR, and subprocess wrappers for
// office/HTML conversion.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{processors: make(map[types.JobKind]Processor)}

	r.processors[types.KindCompress] = &CompressProcessor{}
	r.processors[types.KindMerge] = &MergeProcessor{}
	r.processors[types.KindSplit] = &SplitProcessor{}
	r.processors[types.KindRotate] = &RotateProcessor{}
	r.processors[types.KindWatermark] = &WatermarkProcessor{}
	r.processors[types.KindProtect] = &ProtectProcessor{}
	r.processors[types.KindUnlock] = &UnlockProcessor{}
	r.processors[types.KindCompare] = &CompareProcessor{}
	r.processors[types.KindCrop] = &CropProcessor{}
	r.processors[types.KindRedact] = &RedactProcessor{}
	r.processors[types.KindSign] = &SignProcessor{}
	r.processors[types.KindRepair] = &RepairProcessor{}
	r.processors[types.KindOCR] = &OCRProcessor{Language: cfg.DefaultOCRLanguage}

	r.processors[types.KindConvertHTMLToPDF] = &HTMLToPDFProcessor{BinaryPath: cfg.WkhtmltopdfPath}
	for _, kind := range []types.JobKind{
		types.KindConvertPDFToWord, types.KindConvertPDFToExcel, types.KindConvertPDFToPPT,
		types.KindConvertWordToPDF, types.KindConvertExcelToPDF,
	} {
		r.processors[kind] = &OfficeConvertProcessor{Kind: kind, SofficePath: cfg.SofficePath}
	}

	return r
}

// Config carries the external binary locations and defaults the registry's
// subprocess and OCR processors need.
type Config struct {
	SofficePath        string
	WkhtmltopdfPath    string
	DefaultOCRLanguage string
}

// Get returns the Processor registered for kind, or an error naming the
// unregistered kind if the registry was built without it (should not happen
// in production; useful in tests that build partial registries).
func (r *Registry) Get(kind types.JobKind) (Processor, error) {
	p, ok := r.processors[kind]
	if !ok {
		return nil, fmt.Errorf("no processor registered for kind %q", kind)
	}
	return p, nil
}
