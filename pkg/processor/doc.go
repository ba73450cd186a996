/*
Package processor implements every document operation docpipe's Job Store
can hold a Kind for, and the Registry that dispatches a Job to the right
implementation.

Processors fall into three categories:

  - In-process, pdfcpu-backed: compress, merge, split, rotate, watermark,
    protect, unlock, compare, crop, redact, sign, repair. These never block
    on an external process; the Scheduler still runs them off the request
    path because they are CPU-bound.
  - Subprocess: convert_html_to_pdf (wkhtmltopdf) and the convert_* office
    conversions (soffice --headless). Both honor the context deadline handed
    in by the Scheduler and map a non-zero exit or timeout to the
    SubprocessFailed/SubprocessTimeout error kinds.
  - OCR: a Tesseract binding (gosseract) run in a goroutine so its blocking
    C call can still be cancelled at the context boundary.

Every Processor returns a Result: the artifact paths it wrote, in
caller-significant order (split's page files ascend by page number; merge
never permutes its inputs), and optional metadata bound for the job's
ResultData.
*/
package processor
