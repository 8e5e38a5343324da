package handler

import (
	"net/http"

	"github.com/Baaaki/songshare/internal/apperror"
	"github.com/Baaaki/songshare/internal/middleware"
	"github.com/Baaaki/songshare/internal/service"
	"github.com/gin-gonic/gin"
)

type PlaylistHandler struct {
	playlistService *service.PlaylistService
}

func NewPlaylistHandler(playlistService *service.PlaylistService) *PlaylistHandler {
	return &PlaylistHandler{
		playlistService: playlistService,
	}
}

type CreatePlaylistRequest struct {
	Name string `json:"name"`
}

type AddSongRequest struct {
	SongID uint `json:"song_id"`
}

var errMissingSongID = apperror.Validation("song_id is required")

// GET /playlists
func (h *PlaylistHandler) List(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	playlists, err := h.playlistService.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, playlists)
}

// POST /playlists
func (h *PlaylistHandler) Create(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req CreatePlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errInvalidBody)
		return
	}

	if _, err := h.playlistService.Create(c.Request.Context(), userID, req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GET /playlists/:id/songs
func (h *PlaylistHandler) Songs(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	playlistID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	songs, err := h.playlistService.Songs(c.Request.Context(), userID, playlistID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, songs)
}

// POST /playlists/:id/songs
func (h *PlaylistHandler) AddSong(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	playlistID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	var req AddSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errInvalidBody)
		return
	}
	if req.SongID == 0 {
		respondError(c, errMissingSongID)
		return
	}

	if err := h.playlistService.AddSong(c.Request.Context(), userID, playlistID, req.SongID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DELETE /playlists/:id/songs/:songId
func (h *PlaylistHandler) RemoveSong(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	playlistID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	songID, err := paramID(c, "songId")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.playlistService.RemoveSong(c.Request.Context(), userID, playlistID, songID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
