package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/types"
)

// pdfConfig returns a fresh pdfcpu configuration. A new value per call keeps
// processors free of shared mutable state between concurrent worker
// invocations.
func pdfConfig() *model.Configuration {
	return model.NewDefaultConfiguration()
}

func outputPath(outDir, base, suffix string) string {
	name := base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(outDir, fmt.Sprintf("%s%s.pdf", name, suffix))
}

// CompressProcessor reduces file size by running pdfcpu's stream
// optimization pass. Quality does not map to a lossy recompression knob in
// pdfcpu (there is none for vector PDF content); it is a required parameter
// checked to lie in 1-100, and it does not change the optimization pass,
// which runs with the same configuration for every quality value.
type CompressProcessor struct{}

func (p *CompressProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.Compress", docerrors.InvalidInput, nil)
	}
	if params.Compress == nil || params.Compress.Quality < 1 || params.Compress.Quality > 100 {
		return nil, docerrors.E("processor.Compress", docerrors.InvalidInput, nil)
	}

	in := inputPaths[0]
	out := outputPath(outDir, filepath.Base(in), "-compressed")

	conf := pdfConfig()
	conf.StatsFileName = ""
	if err := api.OptimizeFile(in, out, conf); err != nil {
		return nil, docerrors.E("processor.Compress", docerrors.ProcessorError, err)
	}
	return &Result{Artifacts: []string{out}}, nil
}

// MergeProcessor concatenates 2-20 input PDFs, preserving input order.
type MergeProcessor struct{}

func (p *MergeProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) < 2 || len(inputPaths) > 20 {
		return nil, docerrors.E("processor.Merge", docerrors.InvalidInput, nil)
	}

	out := filepath.Join(outDir, "merged.pdf")
	if err := api.MergeCreateFile(inputPaths, out, false, pdfConfig()); err != nil {
		return nil, docerrors.E("processor.Merge", docerrors.ProcessorError, err)
	}
	return &Result{Artifacts: []string{out}}, nil
}

// SplitProcessor extracts the pages named by the split grammar into one PDF
// per page, enumerated in ascending page order.
type SplitProcessor struct{}

func (p *SplitProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.Split", docerrors.InvalidInput, nil)
	}
	if params.Split == nil {
		return nil, docerrors.E("processor.Split", docerrors.InvalidPageSpec, nil)
	}

	in := inputPaths[0]
	pageCount, err := api.PageCountFile(in)
	if err != nil {
		return nil, docerrors.E("processor.Split", docerrors.ProcessorError, err)
	}

	pages, err := ParsePageSpec(params.Split.Pages, pageCount)
	if err != nil {
		return nil, err
	}

	artifacts := make([]string, 0, len(pages))
	for _, page := range pages {
		out := filepath.Join(outDir, fmt.Sprintf("page-%d.pdf", page))
		selector := []string{strconv.Itoa(page)}
		if err := api.TrimFile(in, out, selector, pdfConfig()); err != nil {
			return nil, docerrors.E("processor.Split", docerrors.ProcessorError, err)
		}
		artifacts = append(artifacts, out)
	}
	return &Result{Artifacts: artifacts}, nil
}

var validRotations = map[int]bool{90: true, 180: true, 270: true}

// RotateProcessor rotates every page of the input PDF by a fixed angle.
type RotateProcessor struct{}

func (p *RotateProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.Rotate", docerrors.InvalidInput, nil)
	}
	if params.Rotate == nil || !validRotations[params.Rotate.Angle] {
		return nil, docerrors.E("processor.Rotate", docerrors.InvalidAngle, nil)
	}

	in := inputPaths[0]
	out := outputPath(outDir, filepath.Base(in), "-rotated")
	if err := api.RotateFile(in, out, params.Rotate.Angle, nil, pdfConfig()); err != nil {
		return nil, docerrors.E("processor.Rotate", docerrors.ProcessorError, err)
	}
	return &Result{Artifacts: []string{out}}, nil
}

// WatermarkProcessor stamps a text watermark across every page.
type WatermarkProcessor struct{}

func (p *WatermarkProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.Watermark", docerrors.InvalidInput, nil)
	}
	if params.Watermark == nil || len(params.Watermark.Text) < 1 || len(params.Watermark.Text) > 100 {
		return nil, docerrors.E("processor.Watermark", docerrors.InvalidInput, nil)
	}

	in := inputPaths[0]
	out := outputPath(outDir, filepath.Base(in), "-watermarked")
	desc := "font:Helvetica, points:24, rotation:45, scalefactor:1.0 abs, opacity:0.3"
	if err := api.AddTextWatermarksFile(in, out, nil, true, params.Watermark.Text, desc, pdfConfig()); err != nil {
		return nil, docerrors.E("processor.Watermark", docerrors.ProcessorError, err)
	}
	return &Result{Artifacts: []string{out}}, nil
}

// ProtectProcessor encrypts the PDF with a user password.
type ProtectProcessor struct{}

func (p *ProtectProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.Protect", docerrors.InvalidInput, nil)
	}
	if params.Protect == nil || len(params.Protect.Password) < 4 || len(params.Protect.Password) > 50 {
		return nil, docerrors.E("processor.Protect", docerrors.InvalidPassword, nil)
	}

	in := inputPaths[0]
	out := outputPath(outDir, filepath.Base(in), "-protected")

	conf := pdfConfig()
	conf.UserPW = params.Protect.Password
	conf.OwnerPW = params.Protect.Password
	conf.EncryptUsingAES = true

	if err := api.EncryptFile(in, out, conf); err != nil {
		return nil, docerrors.E("processor.Protect", docerrors.ProcessorError, err)
	}
	return &Result{Artifacts: []string{out}}, nil
}

// UnlockProcessor removes password protection given the correct password.
type UnlockProcessor struct{}

func (p *UnlockProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.Unlock", docerrors.InvalidInput, nil)
	}
	if params.Unlock == nil {
		return nil, docerrors.E("processor.Unlock", docerrors.InvalidInput, nil)
	}

	in := inputPaths[0]

	encrypted, err := api.IsEncryptedFile(in)
	if err != nil {
		return nil, docerrors.E("processor.Unlock", docerrors.ProcessorError, err)
	}
	if !encrypted {
		return nil, docerrors.E("processor.Unlock", docerrors.NotEncrypted, nil)
	}

	out := outputPath(outDir, filepath.Base(in), "-unlocked")
	conf := pdfConfig()
	conf.UserPW = params.Unlock.Password

	if err := api.DecryptFile(in, out, conf); err != nil {
		return nil, docerrors.E("processor.Unlock", docerrors.WrongPassword, err)
	}
	return &Result{Artifacts: []string{out}}, nil
}

// CompareProcessor reports whether two PDFs are identical and, if not, a
// coarse page-level diff. It produces no artifacts; only metadata.
type CompareProcessor struct{}

func (p *CompareProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 2 {
		return nil, docerrors.E("processor.Compare", docerrors.InvalidInput, nil)
	}

	countA, err := api.PageCountFile(inputPaths[0])
	if err != nil {
		return nil, docerrors.E("processor.Compare", docerrors.ProcessorError, err)
	}
	countB, err := api.PageCountFile(inputPaths[1])
	if err != nil {
		return nil, docerrors.E("processor.Compare", docerrors.ProcessorError, err)
	}

	var differing []int
	if countA == countB {
		min := countA
		for page := 1; page <= min; page++ {
			selector := []string{strconv.Itoa(page)}
			pageA := filepath.Join(outDir, fmt.Sprintf("a-%d.pdf", page))
			pageB := filepath.Join(outDir, fmt.Sprintf("b-%d.pdf", page))
			if err := api.TrimFile(inputPaths[0], pageA, selector, pdfConfig()); err != nil {
				return nil, docerrors.E("processor.Compare", docerrors.ProcessorError, err)
			}
			if err := api.TrimFile(inputPaths[1], pageB, selector, pdfConfig()); err != nil {
				return nil, docerrors.E("processor.Compare", docerrors.ProcessorError, err)
			}
			same, err := filesEqual(pageA, pageB)
			if err != nil {
				return nil, docerrors.E("processor.Compare", docerrors.ProcessorError, err)
			}
			if !same {
				differing = append(differing, page)
			}
		}
	}

	identical := countA == countB && len(differing) == 0
	return &Result{
		Metadata: types.ResultData{
			Compare: &types.CompareResult{
				Identical:      identical,
				PageCountA:     countA,
				PageCountB:     countB,
				DifferingPages: differing,
			},
		},
	}, nil
}

// CropProcessor trims every page to a fixed margin box, expressed in points
// from each edge.
type CropProcessor struct{}

func (p *CropProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.Crop", docerrors.InvalidInput, nil)
	}
	if params.Crop == nil {
		return nil, docerrors.E("processor.Crop", docerrors.InvalidInput, nil)
	}

	in := inputPaths[0]
	out := outputPath(outDir, filepath.Base(in), "-cropped")
	box := fmt.Sprintf("l:%v, b:%v, r:%v, t:%v",
		params.Crop.Left, params.Crop.Bottom, params.Crop.Right, params.Crop.Top)

	if err := api.CropFile(in, out, nil, box, pdfConfig()); err != nil {
		return nil, docerrors.E("processor.Crop", docerrors.ProcessorError, err)
	}
	return &Result{Artifacts: []string{out}}, nil
}

// RedactProcessor paints opaque rectangles over the given page regions using
// pdfcpu's watermark stamping (a filled box watermark per region), since
// pdfcpu has no standalone redaction command.
type RedactProcessor struct{}

func (p *RedactProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.Redact", docerrors.InvalidInput, nil)
	}
	if params.Redact == nil || len(params.Redact.Regions) == 0 {
		return nil, docerrors.E("processor.Redact", docerrors.InvalidInput, nil)
	}

	in := inputPaths[0]
	out := in
	for i, region := range params.Redact.Regions {
		next := filepath.Join(outDir, fmt.Sprintf("redact-step-%d.pdf", i))
		selector := []string{strconv.Itoa(region.Page)}
		desc := fmt.Sprintf("points:0, fillcolor:0 0 0, scalefactor:1.0 abs, pos:bl, offset:%v %v, dim:%v %v",
			region.X, region.Y, region.Width, region.Height)
		if err := api.AddTextWatermarksFile(out, next, selector, true, " ", desc, pdfConfig()); err != nil {
			return nil, docerrors.E("processor.Redact", docerrors.ProcessorError, err)
		}
		out = next
	}

	final := outputPath(outDir, filepath.Base(in), "-redacted")
	if err := copyFile(out, final); err != nil {
		return nil, docerrors.E("processor.Redact", docerrors.ProcessorError, err)
	}
	return &Result{Artifacts: []string{final}}, nil
}

// SignProcessor stamps a textual signature mark at a fixed position on one
// page. pdfcpu's community build has no cryptographic signing API; this
// produces a visible signature mark, not a PKCS#7 signature.
type SignProcessor struct{}

func (p *SignProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.Sign", docerrors.InvalidInput, nil)
	}
	if params.Sign == nil || params.Sign.Text == "" {
		return nil, docerrors.E("processor.Sign", docerrors.InvalidInput, nil)
	}

	in := inputPaths[0]
	out := outputPath(outDir, filepath.Base(in), "-signed")
	selector := []string{strconv.Itoa(params.Sign.Page)}
	desc := fmt.Sprintf("font:Helvetica, points:14, pos:bl, offset:%v %v, rotation:0, opacity:1.0", params.Sign.X, params.Sign.Y)

	if err := api.AddTextWatermarksFile(in, out, selector, true, params.Sign.Text, desc, pdfConfig()); err != nil {
		return nil, docerrors.E("processor.Sign", docerrors.ProcessorError, err)
	}
	return &Result{Artifacts: []string{out}}, nil
}

// RepairProcessor attempts to recover a malformed PDF by running it through
// pdfcpu's optimize pass, which rewrites the cross-reference table and
// object streams from scratch.
type RepairProcessor struct{}

func (p *RepairProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*Result, error) {
	if len(inputPaths) != 1 {
		return nil, docerrors.E("processor.Repair", docerrors.InvalidInput, nil)
	}

	in := inputPaths[0]
	out := outputPath(outDir, filepath.Base(in), "-repaired")
	if err := api.OptimizeFile(in, out, pdfConfig()); err != nil {
		return nil, docerrors.E("processor.Repair", docerrors.ProcessorError, err)
	}
	return &Result{Artifacts: []string{out}}, nil
}
