package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/urbanbigdatacentre/cctv-gcc-api/config"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/api/middleware"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/ingest"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const uploadPath = "/records/upload_report"

// UploadHandler serves the report upload form and accepts report files.
type UploadHandler struct {
	cfg       *config.Config
	pool      *ingest.Pool
	templates *template.Template
	maxBytes  int64
}

// uploadResponse keeps the fields of the last processed file at the top level.
type uploadResponse struct {
	*ingest.Result
	Files []*ingest.Result `json:"files"`
}

// NewUploadHandler parses templates/*.html from templates.
func NewUploadHandler(cfg *config.Config, pool *ingest.Pool, templates fs.FS) (*UploadHandler, error) {
	// "t" is rebound per request to the caller's language
	tmpl, err := template.New("").
		Funcs(template.FuncMap{"t": func(key string) string { return key }}).
		ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	maxMB := cfg.Ingest.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 64
	}
	return &UploadHandler{
		cfg:       cfg,
		pool:      pool,
		templates: tmpl,
		maxBytes:  int64(maxMB) << 20,
	}, nil
}

func (h *UploadHandler) RegisterRoutes(router gin.IRouter) {
	router.GET(uploadPath, h.UploadForm)
	router.POST(uploadPath, h.UploadReport)
}

// UploadForm renders the localized upload page.
func (h *UploadHandler) UploadForm(c *gin.Context) {
	tmpl, err := h.templates.Clone()
	if err != nil {
		respondError(c, err)
		return
	}
	tmpl.Funcs(template.FuncMap{"t": func(key string) string { return middleware.T(c, key) }})

	var buf bytes.Buffer
	err = tmpl.ExecuteTemplate(&buf, "upload_report.html", gin.H{
		"Language": c.GetString(middleware.LanguageKey),
		"Action":   uploadPath,
		"Version":  h.cfg.Server.Version,
	})
	if err != nil {
		log.Errorf("Failed to render upload form: %v", err)
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// UploadReport ingests every uploaded file in the order the request carries them.
// Processing stops at the first file that is rejected; files before it stay stored.
func (h *UploadHandler) UploadReport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	form, err := readUploadForm(c.Request)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || (err != nil && strings.Contains(err.Error(), "request body too large")) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": ingest.StatusError, "message": middleware.T(c, "errors.too_large")})
		return
	}
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.WithError(err).Warn("Failed to read report upload")
		c.JSON(http.StatusBadRequest, gin.H{"status": ingest.StatusError, "message": err.Error()})
		return
	}

	if form.value("pin-code") != h.cfg.Server.UploadPIN {
		log.WithField("client_ip", c.ClientIP()).Warn("Report upload with wrong PIN")
		unauthorized(c)
		return
	}
	overwrite := form.value("overwrite") == "t"

	if len(form.files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": ingest.StatusError, "message": middleware.T(c, "errors.no_files")})
		return
	}

	resp := uploadResponse{Files: []*ingest.Result{}}
	for _, f := range form.files {
		log.Infof("Processing uploaded report %s (%d bytes)", f.name, len(f.data))

		result, err := h.pool.Submit(c.Request.Context(), f.data, ingest.Options{
			Overwrite: overwrite,
			Source:    f.name,
		})
		if err != nil {
			respondReportError(c, f.name, err)
			return
		}
		resp.Result = result
		resp.Files = append(resp.Files, result)
	}

	c.JSON(http.StatusOK, resp)
}

type uploadedFile struct {
	name string
	data []byte
}

// uploadForm is a multipart body with its files kept in request order.
type uploadForm struct {
	values map[string]string
	files  []uploadedFile
}

func (f *uploadForm) value(key string) string {
	if f == nil {
		return ""
	}
	return f.values[key]
}

// readUploadForm reads every part of a multipart body. The first value of a repeated
// field wins.
func readUploadForm(r *http.Request) (*uploadForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	form := &uploadForm{values: make(map[string]string)}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return form, nil
		}
		if err != nil {
			return nil, err
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read form part %q: %w", part.FormName(), err)
		}

		if part.FileName() == "" {
			if _, ok := form.values[part.FormName()]; !ok {
				form.values[part.FormName()] = string(data)
			}
			continue
		}
		form.files = append(form.files, uploadedFile{name: part.FileName(), data: data})
	}
}
