package handlers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/booktalk/backend/internal/config"
	"github.com/booktalk/backend/internal/database"
	"github.com/booktalk/backend/internal/middleware"
	"github.com/booktalk/backend/internal/models"
	"github.com/booktalk/backend/internal/services"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	store    *memoryStore
	sender   *stubSender
	notifier *recordingNotifier
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.SetOutput(io.Discard)
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	env := &testEnv{
		db:       db,
		store:    newMemoryStore(),
		sender:   &stubSender{},
		notifier: &recordingNotifier{},
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(recover.New())

	RegisterRoutes(app, Dependencies{
		DB:       db,
		Photos:   services.NewPhotoService(env.store),
		Sender:   env.sender,
		Notifier: env.notifier,
		Reset: config.ResetConfig{
			TokenTTL:    time.Hour,
			LinkBaseURL: "http://localhost:3000/reset-password",
		},
	})
	env.app = app

	return env
}

type stubSender struct {
	mu   sync.Mutex
	sent []services.Message
	err  error
}

func (s *stubSender) Send(ctx context.Context, msg services.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubSender) messages() []services.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]services.Message(nil), s.sent...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	queued []services.Message
}

func (n *recordingNotifier) Enqueue(msg services.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queued = append(n.queued, msg)
	return true
}

func (n *recordingNotifier) messages() []services.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]services.Message(nil), n.queued...)
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectName] = data
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectName)
	return nil
}

func (m *memoryStore) PublicURL(objectName string) string {
	return "https://cdn.test/" + objectName
}

func (m *memoryStore) keysWithPrefix(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestBook(t *testing.T, db *gorm.DB, title string, published string, categories ...string) *models.Book {
	t.Helper()

	date, err := time.Parse("2006-01-02", published)
	if err != nil {
		t.Fatalf("bad test date %q: %v", published, err)
	}

	book := &models.Book{
		Title:         title,
		Authors:       []string{"Test Author"},
		Publisher:     "Test Press",
		Description:   "A test book.",
		PublishedDate: models.NewDate(date),
		Categories:    categories,
	}
	if err := db.Create(book).Error; err != nil {
		t.Fatalf("failed creating test book: %v", err)
	}
	if rows := models.CategoryRowsFor(book.ID, categories); len(rows) > 0 {
		if err := db.Create(&rows).Error; err != nil {
			t.Fatalf("failed creating test book categories: %v", err)
		}
	}
	return book
}

func createTestDiscussion(t *testing.T, db *gorm.DB, book *models.Book, creator *models.User, title string, date time.Time) *models.Discussion {
	t.Helper()

	discussion := &models.Discussion{
		Title:       title,
		BookID:      book.ID,
		Content:     "Let's talk.",
		Date:        date,
		MeetingLink: "https://meet.test/room",
		CreatedByID: creator.ID,
	}
	if err := db.Create(discussion).Error; err != nil {
		t.Fatalf("failed creating test discussion: %v", err)
	}
	return discussion
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

// performMultipartRequest sends fields and an optional "file" part.
func performMultipartRequest(t *testing.T, app *fiber.App, method, path string, fields map[string]string, file []byte, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing field %s: %v", key, err)
		}
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", "photo.png")
		if err != nil {
			t.Fatalf("failed creating file part: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("failed writing file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	requestHeaders := map[string]string{"Content-Type": writer.FormDataContentType()}
	for key, value := range headers {
		requestHeaders[key] = value
	}

	return performRequest(t, app, method, path, &buf, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %+v", body)
	}
	return data
}

func dataList(t *testing.T, body map[string]any) []any {
	t.Helper()
	data, ok := body["data"].([]any)
	if !ok {
		t.Fatalf("expected data array, got %+v", body)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertEnvelopeError checks the error kind and, when non-empty, the message.
func assertEnvelopeError(t *testing.T, body map[string]any, kind, message string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %+v", body["error"])
	}
	if got, _ := errObj["kind"].(string); got != kind {
		t.Fatalf("expected error kind %q, got %q", kind, got)
	}
	if message != "" {
		if got, _ := errObj["message"].(string); got != message {
			t.Fatalf("expected error message %q, got %q", message, got)
		}
	}
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed encoding png: %v", err)
	}
	return buf.Bytes()
}

func apiPath(format string, args ...any) string {
	return "/api/v1" + fmt.Sprintf(format, args...)
}
