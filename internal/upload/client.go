package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/raceshot/uploader/pkg/models"
)

// maxBodySnippet bounds how much of a non-JSON response body is kept as the
// error message.
const maxBodySnippet = 300

// Client talks to the photographer upload endpoint. One request is made per
// attempt; the per-attempt timeout is configured on the underlying resty
// client.
type Client struct {
	http     *resty.Client
	endpoint string
	token    string
}

func NewClient(endpoint, token string, timeout time.Duration) *Client {
	return &Client{
		http:     resty.New().SetTimeout(timeout),
		endpoint: endpoint,
		token:    token,
	}
}

// apiResponse is the tolerated shape of the server's JSON body. Unexpected
// shapes degrade to "no photoId / raw body as message" rather than failing
// the attempt.
type apiResponse struct {
	// Success is a pointer so an envelope that explicitly says false is
	// distinguishable from a body carrying no verdict at all.
	Success  *bool        `json:"success"`
	Message  string       `json:"message"`
	PhotoIDs []string     `json:"photoIds"`
	PhotoID  string       `json:"photoId"`
	Failures []apiFailure `json:"failures"`
}

type apiFailure struct {
	FileName    string `json:"fileName"`
	FileNameAlt string `json:"filename"`
	Error       string `json:"error"`
	PhotoID     string `json:"photoId"`
	PhotoIDAlt  string `json:"photoID"`
}

func (f apiFailure) name() string {
	if f.FileName != "" {
		return f.FileName
	}
	return f.FileNameAlt
}

func (f apiFailure) photoID() string {
	if f.PhotoID != "" {
		return f.PhotoID
	}
	return f.PhotoIDAlt
}

var duplicateKeywords = []string{"already upload", "already uploaded", "duplicate", "已上傳", "已存在"}

// isDuplicateFailure reports whether a failure item really means the photo
// was uploaded before, and returns the existing photo id when the server
// includes one. A failure carrying a photo id is treated as a duplicate even
// without a matching message.
func isDuplicateFailure(f apiFailure) (bool, string) {
	msg := strings.ToLower(strings.TrimSpace(f.Error))
	for _, kw := range duplicateKeywords {
		if strings.Contains(msg, kw) {
			return true, f.photoID()
		}
	}
	if pid := f.photoID(); pid != "" {
		return true, pid
	}
	return false, ""
}

func classifyStatus(status int) models.Classification {
	switch {
	case status >= 200 && status < 300:
		return models.ClassSuccess
	case status == 429:
		return models.ClassRateLimited
	case status >= 500:
		return models.ClassServerError
	default:
		return models.ClassClientError
	}
}

// classifyTransportError distinguishes timeouts from other connection-level
// failures, and recognizes caller cancellation.
func classifyTransportError(ctx context.Context, err error) models.Classification {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return models.ClassCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ClassTimeout
	}
	return models.ClassConnectionError
}

func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodySnippet {
		// Back up to a rune boundary so a multi-byte character is never
		// split mid-sequence.
		cut := maxBodySnippet
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	if s == "" {
		return "no body"
	}
	return s
}

func contentTypeFor(fileName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (c *Client) newRequest(ctx context.Context, task models.UploadTask) *resty.Request {
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetFormData(map[string]string{
			"eventId":  task.EventID,
			"location": task.Location,
			"price":    strconv.Itoa(task.Price),
		})
	if task.BibNumber != "" {
		req.SetFormData(map[string]string{"bibNumber": task.BibNumber})
	}
	// Pass through whichever coordinate is configured; a partial pair is
	// sent partially and left to server-side validation.
	if task.Longitude != nil {
		req.SetFormData(map[string]string{"longitude": strconv.FormatFloat(*task.Longitude, 'f', -1, 64)})
	}
	if task.Latitude != nil {
		req.SetFormData(map[string]string{"latitude": strconv.FormatFloat(*task.Latitude, 'f', -1, 64)})
	}
	return req
}

// UploadSingle performs one upload attempt for a single file and classifies
// the outcome. The file's bytes are supplied by the caller so a retry reuses
// the same content without re-reading the file.
func (c *Client) UploadSingle(ctx context.Context, task models.UploadTask, data []byte) models.AttemptOutcome {
	start := time.Now()
	req := c.newRequest(ctx, task).
		SetMultipartField("images", task.FileName, contentTypeFor(task.FileName), bytes.NewReader(data))

	resp, err := req.Post(c.endpoint)
	elapsed := time.Since(start)
	if err != nil {
		return models.AttemptOutcome{
			Class:   classifyTransportError(ctx, err),
			Message: err.Error(),
			Elapsed: elapsed,
		}
	}

	status := resp.StatusCode()
	body := resp.Body()
	out := models.AttemptOutcome{
		StatusCode: status,
		Class:      classifyStatus(status),
		Elapsed:    elapsed,
	}

	var payload apiResponse
	parsed := json.Unmarshal(body, &payload) == nil

	if out.Class == models.ClassSuccess {
		if !parsed {
			// Tolerant parse: a 2xx with an unexpected body is still a
			// success, just without a photo id.
			out.Message = bodySnippet(body)
			return out
		}
		if payload.Success == nil || *payload.Success {
			// Explicit success, or a body with no envelope verdict at all.
			out.Message = payload.Message
			out.PhotoID = firstPhotoID(payload)
			return out
		}
		// 2xx envelope reporting an application-level failure.
		if len(payload.Failures) > 0 {
			f := payload.Failures[0]
			if dup, pid := isDuplicateFailure(f); dup {
				out.Message = "already uploaded"
				out.PhotoID = pid
				return out
			}
			out.Class = models.ClassClientError
			out.Message = failureMessage(f, payload.Message)
			return out
		}
		// success:false with nothing in failures to match still means the
		// upload did not happen.
		out.Class = models.ClassClientError
		out.Message = payload.Message
		if out.Message == "" {
			out.Message = "upload failed"
		}
		return out
	}

	if parsed {
		out.Message = payload.Message
		if out.Message == "" && len(payload.Failures) > 0 {
			out.Message = payload.Failures[0].Error
		}
	}
	if out.Message == "" {
		out.Message = "HTTP " + strconv.Itoa(status) + ": " + bodySnippet(body)
	}
	return out
}

func firstPhotoID(payload apiResponse) string {
	if len(payload.PhotoIDs) > 0 {
		return payload.PhotoIDs[0]
	}
	return payload.PhotoID
}

func failureMessage(f apiFailure, fallback string) string {
	if f.Error != "" {
		return f.Error
	}
	if fallback != "" {
		return fallback
	}
	return "upload failed"
}

// UploadBatch performs one upload attempt carrying several files in a single
// request. When the server's reply can be reconciled per-file it returns the
// per-file results and a zero outcome; otherwise results is nil and the
// outcome classifies the attempt for the retry loop.
func (c *Client) UploadBatch(ctx context.Context, tasks []models.UploadTask, files [][]byte) ([]models.UploadResult, models.AttemptOutcome) {
	start := time.Now()
	req := c.newRequest(ctx, tasks[0])
	for i, task := range tasks {
		req.SetMultipartField("images", task.FileName, contentTypeFor(task.FileName), bytes.NewReader(files[i]))
	}

	resp, err := req.Post(c.endpoint)
	elapsed := time.Since(start)
	if err != nil {
		return nil, models.AttemptOutcome{
			Class:   classifyTransportError(ctx, err),
			Message: err.Error(),
			Elapsed: elapsed,
		}
	}

	status := resp.StatusCode()
	body := resp.Body()
	class := classifyStatus(status)

	var payload apiResponse
	parsed := json.Unmarshal(body, &payload) == nil

	if class != models.ClassSuccess || !parsed {
		msg := "HTTP " + strconv.Itoa(status) + ": " + bodySnippet(body)
		if parsed && payload.Message != "" {
			msg = payload.Message
		}
		if class == models.ClassSuccess {
			// 2xx body we cannot reconcile per-file: terminal failure for
			// the whole batch rather than guessing who succeeded.
			class = models.ClassClientError
		}
		return nil, models.AttemptOutcome{
			StatusCode: status,
			Class:      class,
			Message:    msg,
			Elapsed:    elapsed,
		}
	}

	return reconcileBatch(tasks, payload, status), models.AttemptOutcome{
		StatusCode: status,
		Class:      models.ClassSuccess,
		Elapsed:    elapsed,
	}
}

// reconcileBatch maps a parsed batch response back onto per-file results.
// Failure items are matched by file name; duplicates become successes;
// failure items the server did not name claim that many not-yet-failed
// entries so the counts still add up.
func reconcileBatch(tasks []models.UploadTask, payload apiResponse, status int) []models.UploadResult {
	failedByName := make(map[string]string)
	dupByName := make(map[string]string)
	unknownFailures := 0
	for _, f := range payload.Failures {
		dup, pid := isDuplicateFailure(f)
		name := f.name()
		if name == "" {
			if !dup {
				unknownFailures++
			}
			continue
		}
		if dup {
			dupByName[name] = pid
		} else {
			failedByName[name] = failureMessage(f, payload.Message)
		}
	}

	results := make([]models.UploadResult, len(tasks))
	for i, task := range tasks {
		r := models.UploadResult{
			FileName:   task.FileName,
			FilePath:   task.FilePath,
			StatusCode: status,
			Attempts:   1,
		}
		if pid, ok := dupByName[task.FileName]; ok {
			r.Success = true
			r.Class = models.ClassSuccess
			r.Message = "already uploaded"
			r.PhotoID = pid
		} else if errMsg, ok := failedByName[task.FileName]; ok {
			r.Class = models.ClassClientError
			r.Error = errMsg
			r.Message = failureMessage(apiFailure{Error: errMsg}, payload.Message)
		} else {
			r.Success = true
			r.Class = models.ClassSuccess
			r.Message = payload.Message
			if r.Message == "" {
				r.Message = "uploaded"
			}
		}
		results[i] = r
	}

	// Unnamed failures: flip that many successes (excluding duplicates) back
	// to failure so the report matches the server's failure count.
	for i := range results {
		if unknownFailures == 0 {
			break
		}
		r := &results[i]
		if _, isDup := dupByName[r.FileName]; r.Success && !isDup {
			r.Success = false
			r.Class = models.ClassClientError
			r.PhotoID = ""
			r.Error = "server reported a failure without a fileName to match"
			r.Message = r.Error
			unknownFailures--
		}
	}

	// The response does not say which file got which id; attach the first
	// id to the first success as a reference.
	if pid := firstPhotoID(payload); pid != "" {
		for i := range results {
			if results[i].Success && results[i].PhotoID == "" {
				results[i].PhotoID = pid
				break
			}
		}
	}

	return results
}
