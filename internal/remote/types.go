package remote

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lexiaoyao20/i18n-app/internal/config"
	"github.com/lexiaoyao20/i18n-app/internal/flat"
)

// FileGroup lists the published files of one language, oldest first.
type FileGroup struct {
	LanguageCode string   `json:"languageCode"`
	PathPrefix   string   `json:"pathPrefix"`
	FileNames    []string `json:"fileNames"`
}

// Newest returns the most recently published file name.
func (g FileGroup) Newest() (string, bool) {
	if len(g.FileNames) == 0 {
		return "", false
	}
	return g.FileNames[len(g.FileNames)-1], true
}

// SystemInfo identifies a backend subsystem.
type SystemInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Manifest is the long-polling response describing what the backend holds.
type Manifest struct {
	TaskHash           string       `json:"taskHash"`
	FileGroups         []FileGroup  `json:"fileGroups"`
	SystemInfos        []SystemInfo `json:"systemInfos"`
	QuerySubSystemInfo SystemInfo   `json:"querySubSystemInfo"`
}

// Group returns the file group of a language.
func (m *Manifest) Group(code string) (FileGroup, bool) {
	if m == nil {
		return FileGroup{}, false
	}
	for _, g := range m.FileGroups {
		if g.LanguageCode == code {
			return g, true
		}
	}
	return FileGroup{}, false
}

// UploadRequest carries one language changeset. TermAndText is serialized
// in its own key order.
type UploadRequest struct {
	SubSystemName string    `json:"subSystemName"`
	VersionNo     string    `json:"versionNo"`
	TermAndText   *flat.Map `json:"termAndText"`
	ProductCode   string    `json:"productCode"`
	Path          string    `json:"path"`
	LanguageCode  string    `json:"languageCode"`
}

// NewUploadRequest builds the upload payload of a changeset for the file at
// relPath.
func NewUploadRequest(cfg config.Config, language, relPath string, changes *flat.Map) UploadRequest {
	return UploadRequest{
		SubSystemName: cfg.SubSystemName,
		VersionNo:     cfg.VersionNo,
		TermAndText:   changes,
		ProductCode:   cfg.ProductCode,
		Path:          UploadPath(relPath),
		LanguageCode:  language,
	}
}

// UploadPath returns the path field the backend expects for a file
// relative to the project root.
func UploadPath(relPath string) string {
	return "/json/" + strings.TrimLeft(relPath, "/")
}

// UploadResult is the data section of an upload response. Data holds the
// section verbatim, including the backend's validation findings.
type UploadResult struct {
	Success bool
	Data    json.RawMessage
}

// APIError is returned when the backend answers with an error status or a
// non-zero envelope code.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code is the envelope code, zero when the body carried none.
	Code int64

	// Message is the backend's message, verbatim.
	Message string

	// Err is the sentinel the error wraps.
	Err error
}

func (e *APIError) Error() string {
	var b strings.Builder

	b.WriteString(e.Err.Error())

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	fmt.Fprintf(&b, " (status code: %d", e.StatusCode)
	if e.Code != 0 {
		fmt.Fprintf(&b, ", code: %d", e.Code)
	}
	b.WriteString(")")

	return b.String()
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *APIError) Unwrap() error {
	return e.Err
}
