package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/booktalk/backend/internal/models"
)

func bookTitles(t *testing.T, body map[string]any) []string {
	t.Helper()
	var titles []string
	for _, item := range dataList(t, body) {
		titles = append(titles, item.(map[string]any)["title"].(string))
	}
	return titles
}

func assertTitles(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected titles %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected titles %v, got %v", want, got)
		}
	}
}

func TestBookListing(t *testing.T) {
	env := setupTestEnv(t)
	createTestBook(t, env.db, "Dune", "1965-08-01", "Fiction / Science Fiction / General")
	createTestBook(t, env.db, "Neuromancer", "1984-07-01", "Fiction / Cyberpunk")
	createTestBook(t, env.db, "A Brief History of Time", "1988-04-01", "Science / Physics")
	createTestBook(t, env.db, "100% Pure", "2001-01-01", "Cooking")

	t.Run("default sort is latest published first", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books"), nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		assertTitles(t, bookTitles(t, body), "100% Pure", "A Brief History of Time", "Neuromancer", "Dune")
		pagination := body["pagination"].(map[string]any)
		if pagination["total"].(float64) != 4 {
			t.Fatalf("expected total 4, got %v", pagination["total"])
		}
	})

	t.Run("sort a-z and oldest", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books?sort=a-z"), nil, nil)
		assertTitles(t, bookTitles(t, decodeJSONMap(t, resp)), "100% Pure", "A Brief History of Time", "Dune", "Neuromancer")

		resp = performRequest(t, env.app, http.MethodGet, apiPath("/books?sort=oldest"), nil, nil)
		assertTitles(t, bookTitles(t, decodeJSONMap(t, resp)), "Dune", "Neuromancer", "A Brief History of Time", "100% Pure")
	})

	t.Run("search is case-insensitive substring", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books?search=NEURO"), nil, nil)
		assertTitles(t, bookTitles(t, decodeJSONMap(t, resp)), "Neuromancer")
	})

	t.Run("search treats wildcards literally", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books?search=%%25"), nil, nil)
		assertTitles(t, bookTitles(t, decodeJSONMap(t, resp)), "100% Pure")
	})

	t.Run("category filter matches the main category prefix", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books?categories=Fiction/Anything&sort=a-z"), nil, nil)
		assertTitles(t, bookTitles(t, decodeJSONMap(t, resp)), "Dune", "Neuromancer")
	})

	t.Run("category filter ORs requested categories", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books?categories=Science,Cooking&sort=a-z"), nil, nil)
		assertTitles(t, bookTitles(t, decodeJSONMap(t, resp)), "100% Pure", "A Brief History of Time")
	})

	t.Run("category filter is case-sensitive", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books?categories=fiction"), nil, nil)
		body := decodeJSONMap(t, resp)
		if titles := bookTitles(t, body); len(titles) != 0 {
			t.Fatalf("expected no matches, got %v", titles)
		}
	})

	t.Run("pagination limits page size", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books?page=2&limit=3"), nil, nil)
		body := decodeJSONMap(t, resp)
		assertTitles(t, bookTitles(t, body), "Dune")
		if body["pagination"].(map[string]any)["totalPages"].(float64) != 2 {
			t.Fatalf("expected 2 pages, got %v", body["pagination"])
		}
	})

	t.Run("pagination rejects invalid page and limit", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books?page=0"), nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "BadRequest", "page must be a positive integer")

		resp = performRequest(t, env.app, http.MethodGet, apiPath("/books?limit=many"), nil, nil)
		body = decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "BadRequest", "limit must be a positive integer")
	})

	t.Run("GET /books/categories lists distinct main categories", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books/categories"), nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		categories := dataMap(t, body)["categories"].([]any)
		want := []string{"Cooking", "Fiction", "Science"}
		if len(categories) != len(want) {
			t.Fatalf("expected %v, got %v", want, categories)
		}
		for i, category := range categories {
			if category != want[i] {
				t.Fatalf("expected %v, got %v", want, categories)
			}
		}
	})
}

func TestBookEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	_, userToken := createTestUser(t, env.db, "reader@test.com", "password123", models.UserRoleUser)
	_, adminToken := createTestUser(t, env.db, "admin@test.com", "password123", models.UserRoleAdmin)

	validBook := func() map[string]any {
		return map[string]any{
			"title":         "1984",
			"googleID":      "g-1984",
			"authors":       []string{"Orwell"},
			"publisher":     "Secker",
			"description":   "...",
			"publishedDate": "1949-06-08",
			"categories":    []string{"Dystopian"},
			"imageLinks": map[string]any{
				"thumbnail": "https://books.test/1984.jpg",
			},
		}
	}

	var bookID string

	t.Run("POST /books creates book", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, apiPath("/books"), validBook(), authHeaders(userToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		data := dataMap(t, body)
		bookID = data["id"].(string)
		if data["publishedDate"] != "1949-06-08" {
			t.Fatalf("expected calendar date, got %v", data["publishedDate"])
		}
		if data["imageLinks"].(map[string]any)["thumbnail"] != "https://books.test/1984.jpg" {
			t.Fatalf("expected image link to be stored, got %v", data["imageLinks"])
		}
	})

	t.Run("POST /books requires authentication", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, apiPath("/books"), validBook(), nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "Unauthenticated", "")
	})

	t.Run("POST /books duplicate googleID", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, apiPath("/books"), validBook(), authHeaders(userToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "BadRequest", "duplicate field value entered for googleID")
	})

	t.Run("POST /books empty categories", func(t *testing.T) {
		payload := validBook()
		delete(payload, "googleID")
		payload["categories"] = []string{}
		resp := performJSONRequest(t, env.app, http.MethodPost, apiPath("/books"), payload, authHeaders(userToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "BadRequest", "categories must contain at least 1 item(s)")
	})

	t.Run("POST /books missing fields are listed", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, apiPath("/books"), map[string]any{
			"authors":       []string{"Someone"},
			"publisher":     "P",
			"description":   "D",
			"publishedDate": "not-a-date",
			"categories":    []string{"X"},
		}, authHeaders(userToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "BadRequest", "title is required, publishedDate must be a valid date (YYYY-MM-DD)")
	})

	t.Run("GET /books/:id", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books/%s", bookID), nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if dataMap(t, body)["title"] != "1984" {
			t.Fatalf("unexpected book %+v", body["data"])
		}
	})

	t.Run("GET /books/:id malformed id", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books/xyz"), nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "BadRequest", "invalid value for id: xyz")
	})

	t.Run("GET /books/:id unknown id", func(t *testing.T) {
		missing := "00000000-0000-0000-0000-000000000001"
		resp := performRequest(t, env.app, http.MethodGet, apiPath("/books/%s", missing), nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "NotFound", "no book with id "+missing)
	})

	t.Run("DELETE /books/:id requires admin", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, apiPath("/books/%s", bookID), nil, authHeaders(userToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "Forbidden", "admin access required")
	})

	t.Run("DELETE /books/:id as admin", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, apiPath("/books/%s", bookID), nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		resp = performRequest(t, env.app, http.MethodGet, apiPath("/books/%s", bookID), nil, nil)
		assertStatus(t, resp, http.StatusNotFound)
	})
}

func TestBookDeleteCascades(t *testing.T) {
	env := setupTestEnv(t)
	admin, adminToken := createTestUser(t, env.db, "cascade-admin@test.com", "password123", models.UserRoleAdmin)
	book := createTestBook(t, env.db, "Doomed", "2000-01-01", "Fiction")
	keep := createTestBook(t, env.db, "Survivor", "2000-01-01", "Fiction")
	discussion := createTestDiscussion(t, env.db, book, admin, "Doomed talk", time.Now().UTC())

	if err := env.db.Create(&models.DiscussionParticipant{DiscussionID: discussion.ID, UserID: admin.ID}).Error; err != nil {
		t.Fatalf("failed adding participant: %v", err)
	}
	bookComment := models.Comment{UserID: admin.ID, BookID: &book.ID, Text: "on the book", LikeCount: 1}
	discussionComment := models.Comment{UserID: admin.ID, DiscussionID: &discussion.ID, Text: "on the discussion"}
	keptComment := models.Comment{UserID: admin.ID, BookID: &keep.ID, Text: "stays"}
	for _, comment := range []*models.Comment{&bookComment, &discussionComment, &keptComment} {
		if err := env.db.Create(comment).Error; err != nil {
			t.Fatalf("failed creating comment: %v", err)
		}
	}
	if err := env.db.Create(&models.CommentLike{CommentID: bookComment.ID, UserID: admin.ID}).Error; err != nil {
		t.Fatalf("failed creating like: %v", err)
	}

	resp := performRequest(t, env.app, http.MethodDelete, apiPath("/books/%s", book.ID), nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)

	counts := []struct {
		name  string
		model any
		want  int64
	}{
		{"books", &models.Book{}, 1},
		{"book categories", &models.BookCategory{}, 1},
		{"discussions", &models.Discussion{}, 0},
		{"participants", &models.DiscussionParticipant{}, 0},
		{"comments", &models.Comment{}, 1},
		{"likes", &models.CommentLike{}, 0},
	}
	for _, tc := range counts {
		var got int64
		if err := env.db.Model(tc.model).Count(&got).Error; err != nil {
			t.Fatalf("failed counting %s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("expected %d %s after cascade, got %d", tc.want, tc.name, got)
		}
	}
}

func TestCategoryPrefixMatch(t *testing.T) {
	env := setupTestEnv(t)
	createTestBook(t, env.db, "Plain Fiction", "2001-01-01", "Fiction")
	createTestBook(t, env.db, "Literary Fiction", "2002-01-01", "Fiction/Literary")
	createTestBook(t, env.db, "Nonfiction", "2003-01-01", "History")

	resp := performRequest(t, env.app, http.MethodGet, apiPath("/books?categories=Fiction/Classic&sort=a-z"), nil, nil)
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	assertTitles(t, bookTitles(t, body), "Literary Fiction", "Plain Fiction")
}
