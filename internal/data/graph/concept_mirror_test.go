package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

func TestNewConceptMirrorWithoutClientIsNoop(t *testing.T) {
	m := NewConceptMirror(nil, logger.Nop())
	if err := m.MirrorConcepts(context.Background(), uuid.New(), nil, nil); err != nil {
		t.Fatalf("noop mirror: %v", err)
	}
}

func TestConceptParams(t *testing.T) {
	contentID := uuid.New()
	a := &types.Concept{ID: uuid.New(), Key: "a", Name: "A", Importance: 0.4}
	b := &types.Concept{ID: uuid.New(), Key: "b", Name: "B"}

	nodes := conceptNodes(contentID, []*types.Concept{a, nil, {Key: "no-id"}, b}, "now")
	if len(nodes) != 2 {
		t.Fatalf("nodes: want 2 got %d", len(nodes))
	}
	if nodes[0]["content_id"] != contentID.String() || nodes[0]["key"] != "a" {
		t.Fatalf("node params: %+v", nodes[0])
	}

	rels := conceptRels(contentID, []*types.ConceptEdge{
		{ID: uuid.New(), FromConceptID: a.ID, ToConceptID: b.ID, Weight: 0.5},
		{ID: uuid.New(), FromConceptID: a.ID},
	}, "now")
	if len(rels) != 1 || rels[0]["relation"] != "related" {
		t.Fatalf("rels: %+v", rels)
	}
}
