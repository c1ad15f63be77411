package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sriramreddyM/coco-annotator/internal/services/annotation"
	"github.com/sriramreddyM/coco-annotator/internal/services/images"
	"github.com/sriramreddyM/coco-annotator/internal/services/imaging"
)

// MaxUploadBytes bounds the multipart body of an image upload.
const MaxUploadBytes = 64 << 20

// ImageHandlers serves the /image namespace.
type ImageHandlers struct {
	images      ImageService
	annotations AnnotationService
	logger      *slog.Logger
}

// NewImageHandlers creates the image handler set.
func NewImageHandlers(imageService ImageService, annotationService AnnotationService, logger *slog.Logger) *ImageHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageHandlers{images: imageService, annotations: annotationService, logger: logger}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParameter, name)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidParameter, name)
	}
	return v, nil
}

// List handles GET /image/
func (h *ImageHandlers) List(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	perPage, err := queryInt(r, "per_page", images.DefaultPerPage)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	fields := r.URL.Query().Get("fields")

	res, err := h.images.List(r.Context(), principal(r), images.ListParams{Page: page, PerPage: perPage})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items, err := project(res.Images, parseFields(fields))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":    res.Total,
		"pages":    res.Pages,
		"page":     res.Page,
		"fields":   fields,
		"per_page": res.PerPage,
		"images":   items,
	})
}

// Upload handles POST /image/
func (h *ImageHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, r, h.logger, errors.Join(ErrInvalidBody, err))
		return
	}

	datasetID, err := strconv.ParseInt(r.FormValue("dataset_id"), 10, 64)
	if err != nil {
		writeError(w, r, h.logger, fmt.Errorf("%w: dataset_id is required", ErrInvalidParameter))
		return
	}
	lat, err := formFloat(r, "latitude")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	lon, err := formFloat(r, "longitude")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, h.logger, fmt.Errorf("%w: image file is required", ErrInvalidParameter))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, h.logger, errors.Join(ErrInvalidBody, err))
		return
	}

	id, err := h.images.Upload(r.Context(), principal(r), images.UploadInput{
		DatasetID: datasetID,
		FileName:  header.Filename,
		Data:      data,
		Latitude:  lat,
		Longitude: lon,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func formFloat(r *http.Request, name string) (*float64, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidParameter, name)
	}
	return &v, nil
}

// Get handles GET /image/{id}: the JPEG rendering of the image.
func (h *ImageHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{})
		return
	}

	opts, asAttachment, err := renderOptions(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	data, img, err := h.images.Render(r.Context(), principal(r), id, opts)
	if errors.Is(err, images.ErrInvalidImageID) {
		writeJSON(w, http.StatusBadRequest, errorResponse{})
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	disposition := "inline"
	if asAttachment {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": img.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func renderOptions(r *http.Request) (opts imaging.Options, asAttachment bool, err error) {
	if opts.Width, err = queryInt(r, "width", 0); err != nil {
		return opts, false, err
	}
	if opts.Height, err = queryInt(r, "height", 0); err != nil {
		return opts, false, err
	}
	if opts.Thumbnail, err = queryBool(r, "thumbnail"); err != nil {
		return opts, false, err
	}
	asAttachment, err = queryBool(r, "asAttachment")
	return opts, asAttachment, err
}

// Delete handles DELETE /image/{id}
func (h *ImageHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, h.logger, images.ErrInvalidImageID)
		return
	}
	if err := h.images.Delete(r.Context(), principal(r), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Update handles PUT /image/{id}
func (h *ImageHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, h.logger, images.ErrInvalidImageID)
		return
	}
	var req images.UpdateInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	img, err := h.images.Update(r.Context(), principal(r), id, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Updated image",
		"annotating":   img.CSAnnotating,
		"annotated by": img.CSAnnotated,
	})
}

type copyRequest struct {
	CategoryIDs []int64 `json:"category_ids"`
}

// CopyAnnotations handles POST /image/copy/{from}/{to}/annotations
func (h *ImageHandlers) CopyAnnotations(w http.ResponseWriter, r *http.Request) {
	from, okFrom := pathID(r, "from")
	to, okTo := pathID(r, "to")
	if !okFrom || !okTo {
		writeError(w, r, h.logger, annotation.ErrInvalidImageIDs)
		return
	}
	var req copyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.annotations.CopyAnnotations(r.Context(), principal(r), from, to, req.CategoryIDs)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"annotations_created": n})
}

// COCO handles GET /image/{id}/coco
func (h *ImageHandlers) COCO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, h.logger, images.ErrInvalidImageID)
		return
	}
	doc, err := h.annotations.ImageCOCO(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type flagRequest struct {
	ImageID   int64 `json:"image_id"`
	IsFlagged bool  `json:"is_flagged"`
}

// Flag handles POST /image/flag
func (h *ImageHandlers) Flag(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.images.Flag(r.Context(), principal(r), req.ImageID, req.IsFlagged); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type approveRequest struct {
	ImageID int64 `json:"image_id"`
}

// Approve handles POST /image/approve
func (h *ImageHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.images.Approve(r.Context(), principal(r), req.ImageID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
