package queryserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basket/remem/internal/queryserver"
	"github.com/basket/remem/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "remem.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type rawEnvelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func runServer(t *testing.T, s *store.Store, requests []string) []rawEnvelope {
	t.Helper()
	srv := &queryserver.Server{Store: s}
	input := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer
	if err := srv.Serve(context.Background(), input, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var results []rawEnvelope
	dec := json.NewDecoder(&out)
	for dec.More() {
		var e rawEnvelope
		if err := dec.Decode(&e); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		results = append(results, e)
	}
	return results
}

func TestServerHandlesInitializeHandshake(t *testing.T) {
	s := openTestStore(t)
	out := runServer(t, s, []string{
		`{"id":"1","method":"initialize","params":{}}`,
		`{"id":"2","method":"initialized","params":{}}`,
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(out))
	}
	for _, e := range out {
		if e.Error != nil {
			t.Fatalf("unexpected error: %+v", e.Error)
		}
	}
}

func TestServerSaveMemoryThenSearch(t *testing.T) {
	s := openTestStore(t)
	out := runServer(t, s, []string{
		`{"id":"1","method":"save_memory","params":{"title":"Use Postgres","narrative":"decided to use postgres for storage","kind":"decision","project":"acme/api"}}`,
		`{"id":"2","method":"search","params":{"query":"postgres","project":"acme/api","limit":10}}`,
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(out))
	}
	if out[0].Error != nil {
		t.Fatalf("save_memory error: %+v", out[0].Error)
	}
	if out[1].Error != nil {
		t.Fatalf("search error: %+v", out[1].Error)
	}
	if !strings.Contains(string(out[1].Result), "Use Postgres") {
		t.Fatalf("expected search to find saved memory, got %s", out[1].Result)
	}

	var items []struct {
		Snippet string `json:"snippet"`
		Time    int64  `json:"time"`
	}
	if err := json.Unmarshal(out[1].Result, &items); err != nil {
		t.Fatalf("decode search result: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 search hit, got %d", len(items))
	}
	if items[0].Snippet == "" {
		t.Fatalf("expected a non-empty match snippet, got %+v", items[0])
	}
	if items[0].Time == 0 {
		t.Fatalf("expected a non-zero created_at timestamp, got %+v", items[0])
	}
}

func TestServerGetObservationsAndTimeline(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids, err := s.InsertMemories(ctx, []store.Memory{
		{Project: "acme/api", Kind: store.KindBugfix, Title: "a", CreatedAtUnix: 1},
		{Project: "acme/api", Kind: store.KindBugfix, Title: "b", CreatedAtUnix: 2},
		{Project: "acme/api", Kind: store.KindBugfix, Title: "c", CreatedAtUnix: 3},
	})
	if err != nil {
		t.Fatalf("insert memories: %v", err)
	}

	out := runServer(t, s, []string{
		`{"id":"1","method":"get_observations","params":{"ids":[` + idList(ids) + `]}}`,
		`{"id":"2","method":"timeline","params":{"anchor":` + itoa(ids[1]) + `,"depth_before":1,"depth_after":1}}`,
	})
	if out[0].Error != nil {
		t.Fatalf("get_observations error: %+v", out[0].Error)
	}
	if !strings.Contains(string(out[0].Result), `"a"`) {
		t.Fatalf("expected observation a in result: %s", out[0].Result)
	}
	if out[1].Error != nil {
		t.Fatalf("timeline error: %+v", out[1].Error)
	}
	if !strings.Contains(string(out[1].Result), `"b"`) {
		t.Fatalf("expected anchor b in timeline: %s", out[1].Result)
	}
}

func TestServerToolsListEnumeratesFourTools(t *testing.T) {
	s := openTestStore(t)
	out := runServer(t, s, []string{`{"id":"1","method":"tools/list","params":{}}`})
	if len(out) != 1 || out[0].Error != nil {
		t.Fatalf("unexpected response: %+v", out)
	}
	for _, name := range []string{"search", "get_observations", "timeline", "save_memory"} {
		if !strings.Contains(string(out[0].Result), `"`+name+`"`) {
			t.Fatalf("expected tool %q in tools/list result: %s", name, out[0].Result)
		}
	}
}

func TestServerUnknownMethodReturnsError(t *testing.T) {
	s := openTestStore(t)
	out := runServer(t, s, []string{`{"id":"1","method":"nonsense","params":{}}`})
	if len(out) != 1 || out[0].Error == nil {
		t.Fatalf("expected error response for unknown method, got %+v", out)
	}
}

func idList(ids []int64) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(itoa(id))
	}
	return sb.String()
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
