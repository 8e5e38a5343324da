package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Baaaki/songshare/internal/apperror"
	"github.com/Baaaki/songshare/internal/middleware"
	"github.com/Baaaki/songshare/internal/service"
	"github.com/Baaaki/songshare/internal/storage"
	"github.com/Baaaki/songshare/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errUploadTooLarge   = apperror.Validation("upload too large")
	errInvalidMultipart = apperror.Validation("invalid multipart form")
)

type SongHandler struct {
	songService    *service.SongService
	maxUploadBytes int64
}

func NewSongHandler(songService *service.SongService, maxUploadBytes int64) *SongHandler {
	return &SongHandler{
		songService:    songService,
		maxUploadBytes: maxUploadBytes,
	}
}

type CreateSongRequest struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Mp3URL   string `json:"mp3_url"`
	CoverURL string `json:"cover_url"`
}

// GET /songs
func (h *SongHandler) List(c *gin.Context) {
	songs, err := h.songService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, songs)
}

// POST /songs/upload
func (h *SongHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, errUploadTooLarge)
			return
		}
		logger.Log.Warn("Upload form parsing failed",
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		respondError(c, errInvalidMultipart)
		return
	}
	defer form.RemoveAll()

	input := service.UploadInput{
		Title:  firstValue(form, "title"),
		Artist: firstValue(form, "artist"),
		Album:  firstValue(form, "album"),
	}
	if id, ok := middleware.UserID(c); ok {
		input.UploaderID = &id
	}

	songFile, closeSong, err := openPart(form, storage.KindSong)
	if err != nil {
		respondError(c, apperror.Internal(err))
		return
	}
	defer closeSong()
	input.Song = songFile

	coverFile, closeCover, err := openPart(form, storage.KindCover)
	if err != nil {
		respondError(c, apperror.Internal(err))
		return
	}
	defer closeCover()
	input.Cover = coverFile

	song, err := h.songService.Upload(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"message": "Song uploaded successfully",
		"songUrl": song.FileURL,
	}
	if song.CoverURL != nil {
		resp["coverUrl"] = *song.CoverURL
	}
	c.JSON(http.StatusOK, resp)
}

// POST /songs registers hosted files from JSON, or takes a multipart upload.
func (h *SongHandler) Create(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.Upload(c)
		return
	}

	var req CreateSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errInvalidBody)
		return
	}

	input := service.CreateInput{
		Title:    req.Title,
		Artist:   req.Artist,
		Album:    req.Album,
		FileURL:  req.Mp3URL,
		CoverURL: req.CoverURL,
	}
	if id, ok := middleware.UserID(c); ok {
		input.UploaderID = &id
	}

	if _, err := h.songService.Create(c.Request.Context(), input); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func firstValue(form *multipart.Form, field string) string {
	if values := form.Value[field]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// openPart opens the first file sent under the kind's field. A missing
// field yields a nil file and a no-op close.
func openPart(form *multipart.Form, kind storage.UploadKind) (*storage.File, func(), error) {
	headers := form.File[kind.String()]
	if len(headers) == 0 {
		return nil, func() {}, nil
	}
	fh := headers[0]

	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, err
	}

	return &storage.File{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	}, func() { f.Close() }, nil
}
