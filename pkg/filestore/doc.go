/*
Package filestore is docpipe's tenant-isolated file layer: uploads, download
artifacts, and scratch space, all rooted under one directory on disk.

# Layout

	<root>/uploads/<tenant_id>/[<job_id>/]<uuid><ext>
	<root>/downloads/<tenant_id>/<job_id>/<display_name>
	<root>/temp/<uuid><ext>

Uploaded bytes land under uploads/ with a generated name; processors write
intermediate and final artifacts under temp/ and hand the result to
FinalizeOutput, which moves it into downloads/ under the name the caller
asked for.

# Path-traversal defense

Every method that accepts an externally influenced path - including internal
callers building paths from a tenant or job ID - runs it through
canonicalize: resolve symlinks, then assert the result still falls under
Root. A path that resolves outside Root fails closed with a PathEscape error
that never echoes the rejected path back to the caller. This check runs on
every read, write and delete, not just uploads.

# Content-type detection

SaveUpload detects the MIME type from the bytes actually written, using
mimetype.DetectFile, not from any client-supplied header. The detected value
is the only one that ever reaches a Job's result data.
*/
package filestore
