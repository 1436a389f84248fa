// Package queryserver runs the long-lived line-framed JSON
// request/response loop that exposes search, get_observations,
// timeline, and save_memory to the host over stdin/stdout. Framing is
// mirrored from the teacher's internal/mcp.StdioTransport (the client
// side of the same protocol shape); this package is the server side.
package queryserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/basket/remem/internal/store"
)

// envelope is one line of the request/response protocol: a JSON-RPC-
// shaped message with a method name and opaque params/result.
type envelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *envelopeError  `json:"error,omitempty"`
}

type envelopeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server reads request envelopes from r and writes response envelopes
// to w, one per line, until r is closed.
type Server struct {
	Store  *store.Store
	Logger *slog.Logger
}

// Serve runs the request loop until the input stream is exhausted or
// ctx is cancelled. It tolerates an initialize/initialized/call
// handshake: those two method names get an empty acknowledgement and
// do not reach the operation dispatcher.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	writer := bufio.NewWriter(w)
	defer writer.Flush()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req envelope
		if err := json.Unmarshal(line, &req); err != nil {
			logger.Warn("queryserver: malformed request", "error", err)
			continue
		}

		resp := s.handle(ctx, req)
		if resp == nil {
			continue
		}
		b, err := json.Marshal(resp)
		if err != nil {
			logger.Warn("queryserver: marshal response", "error", err)
			continue
		}
		if _, err := writer.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("flush response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req envelope) *envelope {
	switch req.Method {
	case "initialize", "initialized":
		return &envelope{ID: req.ID, Result: json.RawMessage(`{}`)}
	case "tools/list":
		return resultEnvelope(req.ID, map[string]any{"tools": toolList})
	case "search":
		return s.handleSearch(ctx, req)
	case "get_observations":
		return s.handleGetObservations(ctx, req)
	case "timeline":
		return s.handleTimeline(ctx, req)
	case "save_memory":
		return s.handleSaveMemory(ctx, req)
	default:
		return &envelope{ID: req.ID, Error: &envelopeError{Code: 400, Message: fmt.Sprintf("unknown method %q", req.Method)}}
	}
}

// tool describes one query-server operation for the tools/list response,
// expressed as a plain struct serialized to JSON rather than generated
// protocol code.
type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

var toolList = []tool{
	{
		Name:        "search",
		Description: "Full-text search over a project's memories, ranked by relevance with recency decay.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":   map[string]any{"type": "string"},
				"project": map[string]any{"type": "string"},
				"kinds":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"limit":   map[string]any{"type": "integer"},
			},
			"required": []string{"query", "project"},
		},
	},
	{
		Name:        "get_observations",
		Description: "Fetch specific memories by id.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}}},
			"required":   []string{"ids"},
		},
	},
	{
		Name:        "timeline",
		Description: "List memories chronologically around an anchor id.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"anchor":       map[string]any{"type": "integer"},
				"depth_before": map[string]any{"type": "integer"},
				"depth_after":  map[string]any{"type": "integer"},
			},
			"required": []string{"anchor"},
		},
	},
	{
		Name:        "save_memory",
		Description: "Create a user-authored memory, exempt from automatic staleness.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":     map[string]any{"type": "string"},
				"narrative": map[string]any{"type": "string"},
				"kind":      map[string]any{"type": "string"},
				"project":   map[string]any{"type": "string"},
			},
			"required": []string{"title", "narrative", "project"},
		},
	},
}

func errResp(id json.RawMessage, err error) *envelope {
	return &envelope{ID: id, Error: &envelopeError{Code: 500, Message: err.Error()}}
}

type searchParams struct {
	Query   string   `json:"query"`
	Project string   `json:"project"`
	Kinds   []string `json:"kinds"`
	Limit   int      `json:"limit"`
}

type searchResultItem struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Kind    string `json:"kind"`
	Project string `json:"project"`
	Time    int64  `json:"time"`
}

func (s *Server) handleSearch(ctx context.Context, req envelope) *envelope {
	var p searchParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResp(req.ID, fmt.Errorf("decode search params: %w", err))
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	kinds := make([]store.Kind, len(p.Kinds))
	for i, k := range p.Kinds {
		kinds[i] = store.Kind(k)
	}

	hits, err := s.Store.SearchFTS(ctx, p.Query, p.Project, kinds, limit)
	if err != nil {
		return errResp(req.ID, err)
	}

	items := make([]searchResultItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, searchResultItem{
			ID:      h.ID,
			Title:   h.Title,
			Snippet: h.Snippet,
			Kind:    string(h.Kind),
			Project: h.Project,
			Time:    h.CreatedAt,
		})
	}
	return resultEnvelope(req.ID, items)
}

type getObservationsParams struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleGetObservations(ctx context.Context, req envelope) *envelope {
	var p getObservationsParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResp(req.ID, fmt.Errorf("decode get_observations params: %w", err))
	}
	memories, err := s.Store.GetMemories(ctx, p.IDs)
	if err != nil {
		return errResp(req.ID, err)
	}
	return resultEnvelope(req.ID, memories)
}

type timelineParams struct {
	Anchor      int64 `json:"anchor"`
	DepthBefore int   `json:"depth_before"`
	DepthAfter  int   `json:"depth_after"`
}

func (s *Server) handleTimeline(ctx context.Context, req envelope) *envelope {
	var p timelineParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResp(req.ID, fmt.Errorf("decode timeline params: %w", err))
	}
	memories, err := s.Store.Timeline(ctx, p.Anchor, p.DepthBefore, p.DepthAfter)
	if err != nil {
		return errResp(req.ID, err)
	}
	return resultEnvelope(req.ID, memories)
}

type saveMemoryParams struct {
	Title     string `json:"title"`
	Narrative string `json:"narrative"`
	Kind      string `json:"kind"`
	Project   string `json:"project"`
}

// handleSaveMemory is the one write operation the server exposes; it
// is the sole producer of user_authored memories, which
// MarkStaleByFileOverlap exempts from automatic staleness.
func (s *Server) handleSaveMemory(ctx context.Context, req envelope) *envelope {
	var p saveMemoryParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResp(req.ID, fmt.Errorf("decode save_memory params: %w", err))
	}
	kind := store.Kind(p.Kind)
	if kind == "" {
		kind = store.KindDecision
	}

	ids, err := s.Store.InsertMemories(ctx, []store.Memory{{
		Project:       p.Project,
		Kind:          kind,
		Title:         p.Title,
		Narrative:     p.Narrative,
		Status:        store.StatusActive,
		UserAuthored:  true,
		CreatedAtUnix: time.Now().Unix(),
	}})
	if err != nil {
		return errResp(req.ID, err)
	}
	return resultEnvelope(req.ID, map[string]int64{"id": ids[0]})
}

func resultEnvelope(id json.RawMessage, v interface{}) *envelope {
	b, err := json.Marshal(v)
	if err != nil {
		return errResp(id, err)
	}
	return &envelope{ID: id, Result: b}
}
