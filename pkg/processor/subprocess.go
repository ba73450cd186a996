package processor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/types"
)

// officeTargetExt maps each convert_* kind to the extension soffice's
// --convert-to flag should produce.
var officeTargetExt = map[types.JobKind]string{
	types.KindConvertPDFToWord:  "docx",
	types.KindConvertPDFToExcel: "xlsx",
	types.KindConvertPDFToPPT:   "pptx",
	types.KindConvertWordToPDF:  "pdf",
	types.KindConvertExcelToPDF: "pdf",
}

// OfficeConvertProcessor shells out to LibreOffice's soffice binary in
// headless mode. This is the one processor that reaches for os/exec
// directly rather than a library wrapper: none of the retrieved examples
// wrap an arbitrary document converter CLI the way this needs, and soffice's
// --convert-to interface is simple enough that a bespoke wrapper is the
// right amount of code for what it does.
type OfficeConvertProcessor struct {
	Kind        types.JobKind
	SofficePath string
}

func (p *OfficeConvertProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.OfficeConvert", docerrors.InvalidInput, nil)
	}
	targetExt, ok := officeTargetExt[p.Kind]
	if !ok {
		return nil, docerrors.E("processor.OfficeConvert", docerrors.Internal, fmt.Errorf("unmapped kind %s", p.Kind))
	}

	in := inputPaths[0]
	binary := p.SofficePath
	if binary == "" {
		binary = "soffice"
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary,
		"--headless", "--norestore",
		"--convert-to", targetExt,
		"--outdir", outDir,
		in,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, docerrors.E("processor.OfficeConvert", docerrors.SubprocessTimeout, ctx.Err())
		}
		return nil, docerrors.E("processor.OfficeConvert", docerrors.SubprocessFailed, fmt.Errorf("%w: %s", err, stderr.String()))
	}

	base := filepath.Base(in)
	name := base[:len(base)-len(filepath.Ext(base))]
	out := filepath.Join(outDir, name+"."+targetExt)
	if _, err := os.Stat(out); err != nil {
		return nil, docerrors.E("processor.OfficeConvert", docerrors.SubprocessFailed, fmt.Errorf("expected output not found: %w", err))
	}

	return &Result{
		Artifacts: []string{out},
		Metadata: types.ResultData{
			Convert: &types.ConvertResult{
				SourceFormat: strings.TrimPrefix(filepath.Ext(in), "."),
				TargetFormat: targetExt,
			},
		},
	}, nil
}

// HTMLToPDFProcessor renders an HTML document to PDF via the wkhtmltopdf
// binary, wrapped by go-wkhtmltopdf's context-aware PDFGenerator.
type HTMLToPDFProcessor struct {
	BinaryPath string
}

func (p *HTMLToPDFProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.HTMLToPDF", docerrors.InvalidInput, nil)
	}

	in := inputPaths[0]
	f, err := os.Open(in)
	if err != nil {
		return nil, docerrors.E("processor.HTMLToPDF", docerrors.ProcessorError, err)
	}
	defer f.Close()

	gen, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, docerrors.E("processor.HTMLToPDF", docerrors.ProcessorError, err)
	}
	if p.BinaryPath != "" {
		gen.SetPath(p.BinaryPath)
	}
	gen.AddPage(wkhtmltopdf.NewPageReader(f))

	if err := gen.RunContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, docerrors.E("processor.HTMLToPDF", docerrors.SubprocessTimeout, ctx.Err())
		}
		return nil, docerrors.E("processor.HTMLToPDF", docerrors.SubprocessFailed, err)
	}

	base := filepath.Base(in)
	name := base[:len(base)-len(filepath.Ext(base))]
	out := filepath.Join(outDir, name+".pdf")
	if err := os.WriteFile(out, gen.Bytes(), 0o644); err != nil {
		return nil, docerrors.E("processor.HTMLToPDF", docerrors.ProcessorError, err)
	}

	return &Result{
		Artifacts: []string{out},
		Metadata: types.ResultData{
			Convert: &types.ConvertResult{SourceFormat: "html", TargetFormat: "pdf"},
		},
	}, nil
}
