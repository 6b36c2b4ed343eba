package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestQueryPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/twins/query" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		var resp queryResponse
		switch req.ContinuationToken {
		case "":
			resp = queryResponse{
				Twins:             []Twin{{ID: "twin-1", Properties: map[string]any{"externalID": "ext1"}}},
				ContinuationToken: "page2",
			}
		case "page2":
			resp = queryResponse{
				Twins: []Twin{{ID: "twin-2", Properties: map[string]any{"externalID": "ext2"}}},
			}
		default:
			t.Errorf("unexpected token %q", req.ContinuationToken)
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL)

	twins, token, err := c.Query(context.Background(), "externalID IN ('ext1','ext2')", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(twins) != 1 || twins[0].ID != "twin-1" {
		t.Errorf("first page = %+v", twins)
	}
	if token != "page2" {
		t.Errorf("token = %q, want page2", token)
	}

	twins, token, err = c.Query(context.Background(), "externalID IN ('ext1','ext2')", token)
	if err != nil {
		t.Fatalf("Query page 2: %v", err)
	}
	if len(twins) != 1 || twins[0].ID != "twin-2" {
		t.Errorf("second page = %+v", twins)
	}
	if token != "" {
		t.Errorf("token = %q, want empty", token)
	}
}

func TestQueryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, _, err := c.Query(context.Background(), "x", ""); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestTwinProperty(t *testing.T) {
	twin := Twin{ID: "t1", Properties: map[string]any{
		"externalID":  "ext1",
		"connectorID": 42,
		"empty":       nil,
	}}

	if got := twin.Property("externalID"); got != "ext1" {
		t.Errorf("Property(externalID) = %q", got)
	}
	// Non-string values render through their default format.
	if got := twin.Property("connectorID"); got != "42" {
		t.Errorf("Property(connectorID) = %q", got)
	}
	if got := twin.Property("empty"); got != "" {
		t.Errorf("Property(empty) = %q", got)
	}
	if got := twin.Property("missing"); got != "" {
		t.Errorf("Property(missing) = %q", got)
	}
}

func TestFieldIn(t *testing.T) {
	got := FieldIn("externalID", []string{"a", "b'c"})
	want := "externalID IN ('a','b''c')"
	if got != want {
		t.Errorf("FieldIn = %q, want %q", got, want)
	}
}
