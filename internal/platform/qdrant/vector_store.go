package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-content/internal/platform/apierr"
	"github.com/yungbote/neurobridge-content/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

const (
	payloadNamespaceKey = "_nb_namespace"
	payloadPointIDKey   = "_nb_point_id"
	maxErrorBodyBytes   = 1024
)

var pointIDNamespaceUUID = uuid.MustParse("6a1c9f0e-52d4-4c1b-9d57-3f0b8e2d41a7")

type Point struct {
	ID      string
	Values  []float32
	Payload map[string]any
}

type Match struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// VectorStore is a namespaced view over one qdrant collection.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, namespace string, points []Point) error
	Search(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]Match, error)
	DeleteByFilter(ctx context.Context, namespace string, filter Filter) error
}

type vectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	nsPrefix string
	http     *http.Client

	mu       sync.Mutex
	dim      int
	distance string
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type Option func(*vectorStore)

func WithHTTPClient(c *http.Client) Option {
	return func(s *vectorStore) {
		if c != nil {
			s.http = c
		}
	}
}

// NewVectorStore does no network I/O; the collection is created on first EnsureCollection.
func NewVectorStore(log *logger.Logger, cfg Config, opts ...Option) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.Distance) == "" {
		cfg.Distance = "Cosine"
	}
	s := &vectorStore{
		log:      log.With("service", "QdrantVectorStore"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		nsPrefix: strings.TrimSpace(cfg.NamespacePrefix),
		http:     &http.Client{Timeout: cfg.Timeout},
		distance: cfg.Distance,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log.Info("Qdrant vector store configured",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"namespace_prefix", s.nsPrefix,
		"distance", cfg.Distance,
	)
	return s, nil
}

// EnsureCollection creates the collection sized to dim if it does not exist yet. An existing
// collection with a different size is a validation error.
func (s *vectorStore) EnsureCollection(ctx context.Context, dim int) error {
	const op = "ensure_collection"
	if dim <= 0 {
		return opErr(op, OperationErrorValidation, "vector dimension must be positive", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim == dim {
		return nil
	}
	if s.dim != 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("collection %q has dim=%d, got %d", s.cfg.Collection, s.dim, dim), nil)
	}

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	if err == nil {
		size := info.Config.Params.Vectors.Size
		if size != 0 && size != dim {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, dim, size), nil)
		}
		s.dim = dim
		if d := strings.TrimSpace(info.Config.Params.Vectors.Distance); d != "" {
			s.distance = d
		}
		return nil
	}
	var oe *OperationError
	if !errors.As(err, &oe) || oe.StatusCode != http.StatusNotFound {
		return err
	}

	req := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": s.cfg.Distance},
	}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), req, nil); err != nil {
		return err
	}
	for _, field := range []string{"content_id", "user_id"} {
		idx := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/index?wait=true"), idx, nil); err != nil {
			s.log.Warn("payload index create failed", "field", field, "error", err)
		}
	}
	s.dim = dim
	s.distance = s.cfg.Distance
	s.log.Info("Qdrant collection created", "collection", s.cfg.Collection, "dim", dim)
	return nil
}

func (s *vectorStore) Upsert(ctx context.Context, namespace string, points []Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	qualifiedNS := s.qualifyNamespace(namespace)
	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Values) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q has empty values", id), nil)
		}
		if dim := s.currentDim(); dim > 0 && len(p.Values) != dim {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", id, dim, len(p.Values)), nil)
		}
		payload := clonePayload(p.Payload)
		payload[payloadNamespaceKey] = qualifiedNS
		payload[payloadPointIDKey] = id
		body = append(body, map[string]any{
			"id":      PointID(qualifiedNS, id),
			"vector":  p.Values,
			"payload": payload,
		})
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": body}, nil)
}

// Search runs a similarity search and, if that call fails, retries once through the query
// API. A missing collection yields no matches. Any other failure of both calls matches
// apierr.ErrVectorStoreUnavailable.
func (s *vectorStore) Search(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]Match, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if dim := s.currentDim(); dim > 0 && len(vector) != dim {
		return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", dim, len(vector)), nil)
	}
	if topK <= 0 {
		topK = 10
	}
	qualifiedNS := s.qualifyNamespace(namespace)
	qf, err := translate(op, qualifiedNS, filter)
	if err != nil {
		return nil, err
	}

	var results []scoredPoint
	searchErr := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       qf,
	}, &results)
	if searchErr != nil {
		s.log.Warn("qdrant search failed; trying query api", "namespace", qualifiedNS, "error", searchErr)
		var queried struct {
			Points []scoredPoint `json:"points"`
		}
		queryErr := s.doJSON(ctx, "query", http.MethodPost, s.collectionPath("/points/query"), map[string]any{
			"query":        vector,
			"limit":        topK,
			"with_payload": true,
			"filter":       qf,
		}, &queried)
		if queryErr != nil {
			if isNotFound(searchErr) && isNotFound(queryErr) {
				s.log.Debug("qdrant collection missing; no matches", "collection", s.cfg.Collection)
				return nil, nil
			}
			return nil, apierr.VectorStoreUnavailable(errors.Join(searchErr, queryErr))
		}
		results = queried.Points
	}

	out := make([]Match, 0, len(results))
	for _, item := range results {
		id := extractPointID(item)
		if id == "" {
			continue
		}
		payload := clonePayload(item.Payload)
		delete(payload, payloadNamespaceKey)
		delete(payload, payloadPointIDKey)
		out = append(out, Match{ID: id, Score: s.normalizeScore(item.Score), Payload: payload})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// DeleteByFilter removes every point in namespace matching filter. A missing collection is
// treated as already empty.
func (s *vectorStore) DeleteByFilter(ctx context.Context, namespace string, filter Filter) error {
	const op = "delete"
	if len(filter) == 0 {
		return opErr(op, OperationErrorValidation, "refusing to delete without a filter", nil)
	}
	qf, err := translate(op, s.qualifyNamespace(namespace), filter)
	if err != nil {
		return err
	}
	err = s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"filter": qf}, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func isNotFound(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.StatusCode == http.StatusNotFound
}

func (s *vectorStore) currentDim() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dim
}

func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := parseEnvelopeStatus(envelope.Status); msg != "" {
		return &OperationError{Code: OperationErrorRequestFailed, Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") || strings.EqualFold(statusString, "acknowledged") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *vectorStore) qualifyNamespace(namespace string) string {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return s.nsPrefix
	}
	if s.nsPrefix == "" {
		return ns
	}
	return s.nsPrefix + ":" + ns
}

// PointID maps a caller id onto the UUID space qdrant accepts. The mapping is stable, so
// re-indexing the same chunk overwrites its point.
func PointID(qualifiedNS, id string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(qualifiedNS+"|"+id)).String()
}

func (s *vectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func extractPointID(item scoredPoint) string {
	if id, ok := item.Payload[payloadPointIDKey].(string); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	if len(item.ID) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(item.ID, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(item.ID, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return ""
}

func (s *vectorStore) normalizeScore(score float64) float64 {
	s.mu.Lock()
	distance := s.distance
	s.mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
