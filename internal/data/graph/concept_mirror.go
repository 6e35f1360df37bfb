package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/neo4jdb"
)

// ConceptMirror copies a content's concept graph into an external graph store.
type ConceptMirror interface {
	MirrorConcepts(ctx context.Context, contentID uuid.UUID, concepts []*types.Concept, edges []*types.ConceptEdge) error
}

type noopMirror struct{}

func (noopMirror) MirrorConcepts(context.Context, uuid.UUID, []*types.Concept, []*types.ConceptEdge) error {
	return nil
}

// NewConceptMirror returns a no-op mirror when client is nil.
func NewConceptMirror(client *neo4jdb.Client, log *logger.Logger) ConceptMirror {
	if client == nil || client.Driver == nil {
		return noopMirror{}
	}
	return &neo4jConceptMirror{client: client, log: log.With("component", "ConceptMirror")}
}

type neo4jConceptMirror struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

const deleteContentGraph = `
MATCH (c:ContentConcept {content_id: $content_id})
DETACH DELETE c
`

const upsertContentConcepts = `
UNWIND $nodes AS n
MERGE (c:ContentConcept {id: n.id})
SET c += n
`

const upsertContentEdges = `
UNWIND $rels AS r
MATCH (a:ContentConcept {id: r.from_id})
MATCH (b:ContentConcept {id: r.to_id})
MERGE (a)-[e:CONCEPT_EDGE {relation: r.relation}]->(b)
SET e.id = r.id,
    e.weight = r.weight,
    e.content_id = r.content_id,
    e.synced_at = r.synced_at
`

func (m *neo4jConceptMirror) MirrorConcepts(ctx context.Context, contentID uuid.UUID, concepts []*types.Concept, edges []*types.ConceptEdge) error {
	if contentID == uuid.Nil {
		return fmt.Errorf("neo4j concept mirror: missing content id")
	}
	ctx = ctxutil.Default(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	nodes := conceptNodes(contentID, concepts, now)
	rels := conceptRels(contentID, edges, now)

	session := m.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.client.Database,
	})
	defer session.Close(ctx)

	if res, err := session.Run(ctx, `CREATE CONSTRAINT content_concept_id_unique IF NOT EXISTS FOR (c:ContentConcept) REQUIRE c.id IS UNIQUE`, nil); err != nil {
		m.log.Warn("neo4j schema init failed (continuing)", "error", err)
	} else {
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		steps := []struct {
			query  string
			params map[string]any
			skip   bool
		}{
			{deleteContentGraph, map[string]any{"content_id": contentID.String()}, false},
			{upsertContentConcepts, map[string]any{"nodes": nodes}, len(nodes) == 0},
			{upsertContentEdges, map[string]any{"rels": rels}, len(rels) == 0},
		}
		for _, s := range steps {
			if s.skip {
				continue
			}
			res, err := tx.Run(ctx, s.query, s.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j concept mirror: %w", err)
	}
	m.log.Debug("concept graph mirrored", "content_id", contentID, "nodes", len(nodes), "edges", len(rels))
	return nil
}

func conceptNodes(contentID uuid.UUID, concepts []*types.Concept, syncedAt string) []map[string]any {
	nodes := make([]map[string]any, 0, len(concepts))
	for _, c := range concepts {
		if c == nil || c.ID == uuid.Nil {
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":         c.ID.String(),
			"content_id": contentID.String(),
			"key":        c.Key,
			"name":       c.Name,
			"summary":    c.Summary,
			"importance": c.Importance,
			"synced_at":  syncedAt,
		})
	}
	return nodes
}

func conceptRels(contentID uuid.UUID, edges []*types.ConceptEdge, syncedAt string) []map[string]any {
	rels := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if e == nil || e.FromConceptID == uuid.Nil || e.ToConceptID == uuid.Nil {
			continue
		}
		relation := e.Relation
		if relation == "" {
			relation = "related"
		}
		rels = append(rels, map[string]any{
			"id":         e.ID.String(),
			"from_id":    e.FromConceptID.String(),
			"to_id":      e.ToConceptID.String(),
			"relation":   relation,
			"weight":     e.Weight,
			"content_id": contentID.String(),
			"synced_at":  syncedAt,
		})
	}
	return rels
}
