package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Baaaki/songshare/internal/cache"
	"github.com/Baaaki/songshare/internal/handler"
	"github.com/Baaaki/songshare/internal/models"
	"github.com/Baaaki/songshare/internal/repository"
	"github.com/Baaaki/songshare/internal/service"
	"github.com/Baaaki/songshare/internal/storage"
	"github.com/Baaaki/songshare/internal/testutil"
	"github.com/Baaaki/songshare/internal/wal"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testSecret = "test-secret-key"

// APIIntegrationTestSuite drives the full router against in-memory SQLite,
// miniredis and a temp upload directory.
type APIIntegrationTestSuite struct {
	suite.Suite
	testDB    *testutil.TestDatabase
	testRedis *testutil.TestRedis
	uploadDir string
	journal   *wal.WAL
	songCache *cache.RedisSongCache
	feed      *service.SongFeed
	router    *gin.Engine
}

func (s *APIIntegrationTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)

	s.testDB = testutil.SetupTestDatabase(s.T())
	s.testRedis = testutil.SetupTestRedis(s.T())
	s.uploadDir = s.T().TempDir()

	journal, err := wal.NewWAL(filepath.Join(s.T().TempDir(), "uploads.journal"))
	s.Require().NoError(err)
	s.journal = journal

	client, err := cache.NewRedisClient(context.Background(), s.testRedis.URL)
	s.Require().NoError(err)
	s.songCache = cache.NewRedisSongCache(client, time.Minute)

	s.feed = service.NewSongFeed(8)
	s.router = s.buildRouter(false)
}

func (s *APIIntegrationTestSuite) buildRouter(uploadRequiresAuth bool) *gin.Engine {
	userRepo := repository.NewUserRepository(s.testDB.DB)
	songRepo := repository.NewSongRepository(s.testDB.DB)
	playlistRepo := repository.NewPlaylistRepository(s.testDB.DB)

	authService := service.NewAuthService(userRepo, testSecret, time.Hour)
	songService := service.NewSongService(songRepo, storage.NewLocalStorage(s.uploadDir, ""), s.journal, s.songCache, s.feed)
	playlistService := service.NewPlaylistService(playlistRepo, songRepo, true)

	return handler.NewRouter(handler.RouterConfig{
		Auth:               handler.NewAuthHandler(authService),
		Songs:              handler.NewSongHandler(songService, 1<<20),
		Playlist:           handler.NewPlaylistHandler(playlistService),
		Feed:               handler.NewFeedHandler(s.feed, nil),
		JWTSecret:          testSecret,
		UploadRequiresAuth: uploadRequiresAuth,
		StaticRoot:         s.uploadDir,
	})
}

func (s *APIIntegrationTestSuite) TearDownSuite() {
	s.feed.Close()
	s.songCache.Close()
	s.journal.Close()
	s.testRedis.Teardown(s.T())
	s.testDB.Teardown(s.T())
}

func (s *APIIntegrationTestSuite) SetupTest() {
	testutil.CleanDatabase(s.T(), s.testDB.DB)
	s.testRedis.Server.FlushAll()
}

func (s *APIIntegrationTestSuite) doJSON(method, path string, body any, auth string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *APIIntegrationTestSuite) doUpload(router *gin.Engine, path string, fields map[string]string, auth string, files ...testutil.FilePart) *httptest.ResponseRecorder {
	body, contentType := testutil.MultipartBody(s.T(), fields, files...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](s *APIIntegrationTestSuite, w *httptest.ResponseRecorder) T {
	var v T
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func songPart(name string) testutil.FilePart {
	return testutil.FilePart{Field: "song", Filename: name, Content: []byte("ID3 fake audio")}
}

func (s *APIIntegrationTestSuite) TestHealth() {
	w := s.doJSON(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("OK", w.Body.String())
}

// TestEndToEnd walks register, login, a wrong login, an anonymous upload
// and the listing.
func (s *APIIntegrationTestSuite) TestEndToEnd() {
	w := s.doJSON(http.MethodPost, "/auth/register", gin.H{"username": "alice", "password": "pw1"}, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.JSONEq(`{"message":"User registered successfully"}`, w.Body.String())

	w = s.doJSON(http.MethodPost, "/auth/login", gin.H{"username": "alice", "password": "pw1"}, "")
	s.Require().Equal(http.StatusOK, w.Code)
	token := decode[map[string]string](s, w)["token"]
	s.NotEmpty(token)

	wrong := s.doJSON(http.MethodPost, "/auth/login", gin.H{"username": "alice", "password": "bad"}, "")
	unknown := s.doJSON(http.MethodPost, "/auth/login", gin.H{"username": "nobody", "password": "pw1"}, "")
	s.Equal(http.StatusUnauthorized, wrong.Code)
	s.Equal(http.StatusUnauthorized, unknown.Code)
	s.Equal(wrong.Body.String(), unknown.Body.String(), "failures are indistinguishable")
	s.JSONEq(`{"error":"invalid credentials"}`, wrong.Body.String())

	w = s.doUpload(s.router, "/songs/upload", map[string]string{"title": "Night Drive", "artist": "Nina"}, "", songPart("drive.mp3"))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	upload := decode[map[string]any](s, w)
	s.Equal("Song uploaded successfully", upload["message"])
	s.Contains(upload["songUrl"], "/uploads/")
	s.NotContains(upload, "coverUrl")

	w = s.doJSON(http.MethodGet, "/songs", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	songs := decode[[]map[string]any](s, w)
	s.Require().Len(songs, 1)
	s.Equal("Night Drive", songs[0]["title"])
	s.Nil(songs[0]["cover_url"])
	s.Nil(songs[0]["uploaded_by"], "anonymous upload")

	// The stored file is served back.
	fileURL := songs[0]["file_url"].(string)
	w = s.doJSON(http.MethodGet, fileURL, nil, "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ID3 fake audio", w.Body.String())
}

func (s *APIIntegrationTestSuite) TestRegisterDuplicateAndAlias() {
	w := s.doJSON(http.MethodPost, "/auth/register", gin.H{"email": "bob", "password": "pw"}, "")
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.doJSON(http.MethodPost, "/auth/register", gin.H{"username": "bob", "password": "other"}, "")
	s.Equal(http.StatusBadRequest, w.Code)
	s.JSONEq(`{"error":"username exists"}`, w.Body.String())

	w = s.doJSON(http.MethodPost, "/auth/login", gin.H{"email": "bob", "password": "pw"}, "")
	s.Equal(http.StatusOK, w.Code, "email alias works for login")
}

func (s *APIIntegrationTestSuite) TestRegisterValidation() {
	w := s.doJSON(http.MethodPost, "/auth/register", gin.H{"username": "", "password": "pw"}, "")
	s.Equal(http.StatusBadRequest, w.Code)
	s.JSONEq(`{"error":"username and password are required"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.JSONEq(`{"error":"invalid request body"}`, rec.Body.String())
}

func (s *APIIntegrationTestSuite) TestUploadValidation() {
	w := s.doUpload(s.router, "/songs/upload", map[string]string{"title": "No file"}, "")
	s.Equal(http.StatusBadRequest, w.Code)
	s.JSONEq(`{"error":"song file is required"}`, w.Body.String())

	w = s.doUpload(s.router, "/songs/upload", map[string]string{}, "", songPart("a.mp3"))
	s.Equal(http.StatusBadRequest, w.Code)
	s.JSONEq(`{"error":"title is required"}`, w.Body.String())

	var count int64
	s.testDB.DB.Model(&models.Song{}).Count(&count)
	s.Zero(count)
}

func (s *APIIntegrationTestSuite) TestUploadTooLarge() {
	big := testutil.FilePart{Field: "song", Filename: "big.mp3", Content: bytes.Repeat([]byte("x"), 2<<20)}
	w := s.doUpload(s.router, "/songs/upload", map[string]string{"title": "Big"}, "", big)
	s.Equal(http.StatusBadRequest, w.Code)
	s.JSONEq(`{"error":"upload too large"}`, w.Body.String())
}

func (s *APIIntegrationTestSuite) TestUploadWithCoverAndUploader() {
	user := testutil.CreateTestUser(s.T(), s.testDB.DB, "carol", "pw")
	auth := testutil.BearerToken(s.T(), user, testSecret)

	cover := testutil.FilePart{Field: "cover", Filename: "art.png", Content: []byte("png")}
	w := s.doUpload(s.router, "/songs/upload", map[string]string{"title": "Covered"}, auth, songPart("c.mp3"), cover)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Contains(decode[map[string]any](s, w)["coverUrl"], "/covers/")

	var song models.Song
	s.Require().NoError(s.testDB.DB.First(&song).Error)
	s.Require().NotNil(song.UploadedBy)
	s.Equal(user.ID, *song.UploadedBy)
}

func (s *APIIntegrationTestSuite) TestUploadRequiresAuthWhenConfigured() {
	router := s.buildRouter(true)

	w := s.doUpload(router, "/songs/upload", map[string]string{"title": "T"}, "", songPart("t.mp3"))
	s.Equal(http.StatusUnauthorized, w.Code)
	s.JSONEq(`{"error":"no token"}`, w.Body.String())
}

func (s *APIIntegrationTestSuite) TestCreateSongMetadata() {
	user := testutil.CreateTestUser(s.T(), s.testDB.DB, "dave", "pw")
	auth := testutil.BearerToken(s.T(), user, testSecret)

	w := s.doJSON(http.MethodPost, "/songs", gin.H{"title": "Hosted", "mp3_url": "https://cdn/x.mp3"}, "")
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.doJSON(http.MethodPost, "/songs", gin.H{"title": "Hosted"}, auth)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodPost, "/songs", gin.H{"title": "Hosted", "mp3_url": "https://cdn/x.mp3", "album": "Live"}, auth)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"success":true}`, w.Body.String())

	// Multipart to the same route goes through the upload path.
	w = s.doUpload(s.router, "/songs", map[string]string{"title": "Uploaded"}, auth, songPart("u.mp3"))
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("Song uploaded successfully", decode[map[string]any](s, w)["message"])

	w = s.doJSON(http.MethodGet, "/songs", nil, "")
	songs := decode[[]map[string]any](s, w)
	s.Require().Len(songs, 2)
	s.Equal("Uploaded", songs[0]["title"])
	s.Equal("Live", songs[1]["album"])
}

func (s *APIIntegrationTestSuite) TestPlaylists() {
	owner := testutil.CreateTestUser(s.T(), s.testDB.DB, "owner", "pw")
	other := testutil.CreateTestUser(s.T(), s.testDB.DB, "other", "pw")
	ownerAuth := testutil.BearerToken(s.T(), owner, testSecret)
	otherAuth := testutil.BearerToken(s.T(), other, testSecret)
	song := testutil.CreateTestSong(s.T(), s.testDB.DB, "tune", time.Now())

	w := s.doJSON(http.MethodGet, "/playlists", nil, "")
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.doJSON(http.MethodPost, "/playlists", gin.H{"name": ""}, ownerAuth)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodPost, "/playlists", gin.H{"name": "Mix"}, ownerAuth)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"success":true}`, w.Body.String())

	w = s.doJSON(http.MethodGet, "/playlists", nil, ownerAuth)
	playlists := decode[[]models.Playlist](s, w)
	s.Require().Len(playlists, 1)
	base := "/playlists/" + jsonNumber(playlists[0].ID) + "/songs"

	w = s.doJSON(http.MethodPost, base, gin.H{"song_id": song.ID}, ownerAuth)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.doJSON(http.MethodPost, base, gin.H{"song_id": song.ID}, ownerAuth)
	s.Equal(http.StatusBadRequest, w.Code)
	s.JSONEq(`{"error":"song already in playlist"}`, w.Body.String())

	w = s.doJSON(http.MethodPost, base, gin.H{"song_id": song.ID + 99}, ownerAuth)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.doJSON(http.MethodGet, base, nil, ownerAuth)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(decode[[]models.Song](s, w), 1)

	w = s.doJSON(http.MethodPost, base, gin.H{"song_id": song.ID}, otherAuth)
	s.Equal(http.StatusNotFound, w.Code)
	s.JSONEq(`{"error":"playlist not found"}`, w.Body.String())

	w = s.doJSON(http.MethodDelete, base+"/"+jsonNumber(song.ID), nil, ownerAuth)
	s.Equal(http.StatusOK, w.Code)
	w = s.doJSON(http.MethodDelete, base+"/"+jsonNumber(song.ID), nil, ownerAuth)
	s.Equal(http.StatusOK, w.Code, "removing a missing link succeeds")

	w = s.doJSON(http.MethodDelete, "/playlists/abc/songs/1", nil, ownerAuth)
	s.Equal(http.StatusBadRequest, w.Code)
}

func jsonNumber(id uint) string {
	data, _ := json.Marshal(id)
	return string(data)
}

func TestAPIIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(APIIntegrationTestSuite))
}

func TestFeedDeliversNewSongs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	feed := service.NewSongFeed(4)
	defer feed.Close()

	router := gin.New()
	router.GET("/songs/feed", handler.NewFeedHandler(feed, []string{"*"}).Subscribe)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/songs/feed"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return feed.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	feed.Publish(models.Song{ID: 3, Title: "Live"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event service.SongEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, service.EventSongCreated, event.Type)
	assert.Equal(t, "Live", event.Song.Title)
}

func TestFeedRejectsUnknownOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	feed := service.NewSongFeed(4)
	defer feed.Close()

	router := gin.New()
	router.GET("/songs/feed", handler.NewFeedHandler(feed, []string{"https://app.example"}).Subscribe)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/songs/feed"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
