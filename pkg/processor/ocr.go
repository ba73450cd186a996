package processor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/otiai10/gosseract/v2"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/types"
)

// OCRProcessor extracts text from a scanned image via Tesseract, writing the
// recognized text to a .txt artifact alongside a confidence estimate in
// ResultData. gosseract operates on raster images; a PDF input is expected
// to already be a single-page scan exported as an image by the caller
// (gosseract has no built-in PDF rasterizer, and pulling one in is out of
// scope for the operations this registry wires).
type OCRProcessor struct {
	Language string
}

func (p *OCRProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.OCR", docerrors.InvalidInput, nil)
	}

	lang := p.Language
	if params.OCR != nil && params.OCR.Language != "" {
		lang = params.OCR.Language
	}
	if lang == "" {
		lang = "eng"
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(lang); err != nil {
		return nil, docerrors.E("processor.OCR", docerrors.ProcessorError, err)
	}
	if err := client.SetImage(inputPaths[0]); err != nil {
		return nil, docerrors.E("processor.OCR", docerrors.ProcessorError, err)
	}

	done := make(chan struct{})
	var text string
	var ocrErr error
	go func() {
		text, ocrErr = client.Text()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, docerrors.E("processor.OCR", docerrors.SubprocessTimeout, ctx.Err())
	case <-done:
	}
	if ocrErr != nil {
		return nil, docerrors.E("processor.OCR", docerrors.ProcessorError, ocrErr)
	}

	base := filepath.Base(inputPaths[0])
	name := base[:len(base)-len(filepath.Ext(base))]
	out := filepath.Join(outDir, name+".txt")
	if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
		return nil, docerrors.E("processor.OCR", docerrors.ProcessorError, err)
	}

	confidence := 0.0
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil {
		confidence = averageConfidence(boxes)
	}

	return &Result{
		Artifacts: []string{out},
		Metadata: types.ResultData{
			OCR: &types.OCRResult{
				Language:   lang,
				Confidence: confidence,
				PageCount:  1,
			},
		},
	}, nil
}

func averageConfidence(boxes []gosseract.BoundingBox) float64 {
	if len(boxes) == 0 {
		return 0
	}
	total := 0.0
	for _, b := range boxes {
		total += b.Confidence
	}
	return total / float64(len(boxes))
}
