package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Upload stages reported through the progress callback.
type UploadStage string

const (
	UploadStagePreparing  UploadStage = "preparing"
	UploadStageUploading  UploadStage = "uploading"
	UploadStageCompleting UploadStage = "completing"
)

const (
	resumableThreshold = 100 * 1024 * 1024 // resumable path forced at 100 MiB
	defaultChunkSize   = 8 * 1024 * 1024
)

// UploadProgress is one fine-grained progress sample.
type UploadProgress struct {
	Percent     int
	BytesLoaded int64
	BytesTotal  int64
	Stage       UploadStage
}

// UploadedFile is the successful outcome of an upload.
type UploadedFile struct {
	GCSURI      string
	RemoteName  string
	FileName    string
	Size        int64
	ContentType string
}

// UploadFile uploads the file at path, picking the upload strategy the
// backend recommends: a single PUT to a signed URL for small files, chunked
// resumable for large ones, multipart to the backend itself when neither is
// offered. Failures are always returned as *UploadError.
func (c *Client) UploadFile(ctx context.Context, path string, onProgress func(UploadProgress)) (*UploadedFile, error) {
	if onProgress == nil {
		onProgress = func(UploadProgress) {}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, uploadFailure(UploadUnknown, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, uploadFailure(UploadUnknown, err)
	}
	size := info.Size()
	filename := filepath.Base(path)
	contentType := detectContentType(filename)

	onProgress(UploadProgress{Percent: 0, BytesTotal: size, Stage: UploadStagePreparing})

	opts, err := c.GetUploadOptions(ctx, filename, size, contentType, size >= resumableThreshold)
	if err != nil {
		return nil, c.classify(err)
	}

	result := &UploadedFile{
		GCSURI:      opts.GCSURI,
		RemoteName:  opts.Filename,
		FileName:    filename,
		Size:        size,
		ContentType: contentType,
	}

	switch {
	case opts.UploadOptions.ResumableUpload != nil &&
		(opts.RecommendedMethod == "resumable_upload" || size >= resumableThreshold):
		err = c.uploadResumable(ctx, file, size, opts.UploadOptions.ResumableUpload, onProgress)
	case opts.UploadOptions.SignedURL != nil:
		err = c.uploadDirect(ctx, file, size, contentType, opts.UploadOptions.SignedURL, onProgress)
	default:
		// Backend offered no direct-to-storage path; send the bytes to the
		// upload endpoint instead.
		uploaded, upErr := c.uploadMultipart(ctx, file, size, filename, contentType, onProgress)
		if upErr != nil {
			return nil, upErr
		}
		result.GCSURI = uploaded.GCSURI
		result.RemoteName = uploaded.Filename
	}
	if err != nil {
		return nil, c.classify(err)
	}

	onProgress(UploadProgress{Percent: 100, BytesLoaded: size, BytesTotal: size, Stage: UploadStageCompleting})
	c.logger.Info("upload finished", "file", filename, "bytes", size, "gcs_uri", result.GCSURI)
	return result, nil
}

// uploadDirect sends the whole file in one PUT to the pre-signed URL.
func (c *Client) uploadDirect(ctx context.Context, file *os.File, size int64, contentType string, opt *SignedURLOption, onProgress func(UploadProgress)) error {
	body := &progressReader{
		r:     file,
		total: size,
		report: func(loaded int64) {
			onProgress(UploadProgress{
				Percent:     ratioPercent(loaded, size, 100),
				BytesLoaded: loaded,
				BytesTotal:  size,
				Stage:       UploadStageUploading,
			})
		},
	}

	method := opt.Method
	if method == "" {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, opt.URL, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	for k, v := range opt.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.plain.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Status: resp.StatusCode, Body: string(payload)}
	}
	return nil
}

// uploadResumable opens an upload session and transfers the file in
// fixed-size chunks with byte-range requests. An intermediate chunk is
// acknowledged with a 308 carrying a Range header for the next offset.
func (c *Client) uploadResumable(ctx context.Context, file *os.File, size int64, opt *ResumableUploadOption, onProgress func(UploadProgress)) error {
	sessionURL, err := c.openResumableSession(ctx, opt)
	if err != nil {
		return err
	}

	chunkSize := opt.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	var offset int64
	for offset < size {
		end := offset + chunkSize
		if end > size {
			end = size
		}

		next, err := c.putChunk(ctx, sessionURL, file, offset, end, size)
		if err != nil {
			return err
		}
		offset = next

		onProgress(UploadProgress{
			Percent:     ratioPercent(offset, size, 99),
			BytesLoaded: offset,
			BytesTotal:  size,
			Stage:       UploadStageUploading,
		})
	}

	onProgress(UploadProgress{Percent: 99, BytesLoaded: size, BytesTotal: size, Stage: UploadStageCompleting})
	return nil
}

// openResumableSession POSTs the session-init URL and returns the session
// URI from the Location header, falling back to the init URL itself.
func (c *Client) openResumableSession(ctx context.Context, opt *ResumableUploadOption) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opt.ResumableURL, nil)
	if err != nil {
		return "", err
	}
	for k, v := range opt.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.plain.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &HTTPError{Status: resp.StatusCode, Body: string(payload)}
	}

	if loc := resp.Header.Get("Location"); loc != "" {
		return loc, nil
	}
	return opt.ResumableURL, nil
}

// putChunk sends bytes [offset, end) and returns the next offset to send.
// A 308 response is a successful intermediate chunk, not an error; its
// Range header, when present, overrides the cursor.
func (c *Client) putChunk(ctx context.Context, sessionURL string, file *os.File, offset, end, total int64) (int64, error) {
	length := end - offset
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, io.NewSectionReader(file, offset, length))
	if err != nil {
		return 0, err
	}
	req.ContentLength = length
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end-1, total))

	resp, err := c.plain.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPermanentRedirect:
		if last, ok := parseRangeEnd(resp.Header.Get("Range")); ok {
			return last + 1, nil
		}
		// No Range header: assume the chunk fully advanced the cursor.
		return end, nil
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return total, nil
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &HTTPError{Status: resp.StatusCode, Body: string(payload)}
	}
}

// uploadMultipart streams the file as a multipart body to the backend's
// upload endpoint.
func (c *Client) uploadMultipart(ctx context.Context, file *os.File, size int64, filename, contentType string, onProgress func(UploadProgress)) (*UploadedFileData, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		src := &progressReader{
			r:     file,
			total: size,
			report: func(loaded int64) {
				onProgress(UploadProgress{
					Percent:     ratioPercent(loaded, size, 100),
					BytesLoaded: loaded,
					BytesTotal:  size,
					Stage:       UploadStageUploading,
				})
			},
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/upload", pr)
	if err != nil {
		return nil, uploadFailure(UploadUnknown, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp UploadedFileData
	if err := c.do(c.plain, req, &resp); err != nil {
		return nil, c.classify(err)
	}
	return &resp, nil
}

// classify converts any transport error into a tagged upload failure.
func (c *Client) classify(err error) *UploadError {
	var upErr *UploadError
	if errors.As(err, &upErr) {
		return upErr
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return uploadFailure(uploadCodeForStatus(httpErr.Status), err)
	}
	return uploadFailure(uploadCodeForErr(err), err)
}

// parseRangeEnd parses a "bytes=0-12345" Range response header and returns
// the last acknowledged byte offset.
func parseRangeEnd(header string) (int64, bool) {
	header = strings.TrimPrefix(header, "bytes=")
	idx := strings.LastIndex(header, "-")
	if idx < 0 {
		return 0, false
	}
	last, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return last, true
}

func detectContentType(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// ratioPercent computes loaded/total as a percentage capped at limit.
func ratioPercent(loaded, total int64, limit int) int {
	if total <= 0 {
		return 0
	}
	pct := int(loaded * 100 / total)
	if pct > limit {
		pct = limit
	}
	return pct
}

// progressReader reports cumulative bytes read.
type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	report func(loaded int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		p.report(p.loaded)
	}
	return n, err
}
