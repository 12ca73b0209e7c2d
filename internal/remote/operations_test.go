package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSaveOfflineExperiences_MixedResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/experiences/offline" {
			t.Errorf("path = %s", r.URL.Path)
		}

		var req struct {
			Experiences []ExperienceInput `json:"experiences"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if len(req.Experiences) != 2 {
			t.Fatalf("submitted %d experiences, want 2", len(req.Experiences))
		}

		resp := map[string]any{
			"results": []any{
				map[string]any{
					"experience": map[string]any{
						"id":       "srv-1",
						"clientId": req.Experiences[0].ClientID,
						"title":    req.Experiences[0].Title,
						"entries": []any{
							map[string]any{
								"id":           "srv-e1",
								"clientId":     req.Experiences[0].Entries[0].ClientID,
								"experienceId": "srv-1",
							},
						},
					},
				},
				map[string]any{
					"error": map[string]any{
						"clientId": req.Experiences[1].ClientID,
						"errors":   map[string]string{"title": "has already been taken"},
					},
				},
			},
		}

		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	inputs := []ExperienceInput{
		{ClientID: "offline:1-1", Title: "hiking", Entries: []EntryInput{{ClientID: "offline:1-2"}}},
		{ClientID: "offline:2-1", Title: "dup"},
	}

	results, err := c.SaveOfflineExperiences(context.Background(), inputs)
	if err != nil {
		t.Fatalf("SaveOfflineExperiences: %v", err)
	}

	if results[0].Experience == nil || results[0].Experience.ID != "srv-1" {
		t.Errorf("result 0 = %+v, want saved experience srv-1", results[0])
	}

	if results[0].Experience.Entries[0].ClientID != "offline:1-2" {
		t.Errorf("entry client id not echoed: %+v", results[0].Experience.Entries[0])
	}

	if results[1].Error == nil || results[1].Error.ClientID != "offline:2-1" {
		t.Errorf("result 1 = %+v, want error keyed by client id", results[1])
	}

	if results[1].Error.Errors["title"] == "" {
		t.Error("field-level error message missing")
	}
}

func TestSaveOfflineExperiences_CountMismatchFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.SaveOfflineExperiences(context.Background(),
		[]ExperienceInput{{ClientID: "offline:1-1"}})
	if err == nil {
		t.Fatal("expected error on result count mismatch")
	}
}

func TestCreateEntries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entries/batch" {
			t.Errorf("path = %s", r.URL.Path)
		}

		resp := map[string]any{
			"batches": []any{
				map[string]any{
					"experienceId": "srv-1",
					"results": []any{
						map[string]any{"entry": map[string]any{
							"id": "srv-e9", "clientId": "offline:3-1", "experienceId": "srv-1",
						}},
						map[string]any{"error": map[string]any{
							"clientId": "offline:3-2",
							"errors":   map[string]string{"data": "invalid"},
						}},
					},
				},
			},
		}

		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	batches, err := c.CreateEntries(context.Background(), []EntryBatchInput{
		{ExperienceID: "srv-1", Entries: []EntryInput{{ClientID: "offline:3-1"}, {ClientID: "offline:3-2"}}},
	})
	if err != nil {
		t.Fatalf("CreateEntries: %v", err)
	}

	if len(batches) != 1 || batches[0].ExperienceID != "srv-1" {
		t.Fatalf("batches = %+v", batches)
	}

	if batches[0].Results[0].Entry == nil || batches[0].Results[1].Error == nil {
		t.Errorf("mixed results not preserved: %+v", batches[0].Results)
	}
}

func TestPrefetchExperiences(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		if len(req.IDs) != 2 {
			t.Errorf("ids = %v", req.IDs)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"experiences": []any{
				map[string]any{"id": "srv-1", "title": "one"},
				map[string]any{"id": "srv-2", "title": "two"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	experiences, err := c.PrefetchExperiences(context.Background(), []string{"srv-1", "srv-2"})
	if err != nil {
		t.Fatalf("PrefetchExperiences: %v", err)
	}

	if len(experiences) != 2 || experiences[1].Title != "two" {
		t.Errorf("experiences = %+v", experiences)
	}
}

func TestMe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			t.Errorf("path = %s", r.URL.Path)
		}

		json.NewEncoder(w).Encode(User{ID: "u1", Email: "a@example.com"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	user, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}

	if user.ID != "u1" || user.Email != "a@example.com" {
		t.Errorf("user = %+v", user)
	}
}
