package content

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-content/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
)

func TestCatalogRepo(t *testing.T) {
	db := testutil.SQLite(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCatalogRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	owner := uuid.New()
	c := testutil.SeedContent(t, ctx, tx, owner, "youtube", "video", "https://www.youtube.com/watch?v=abc")

	got, err := repo.GetContentByID(dbc, c.ID)
	if err != nil {
		t.Fatalf("GetContentByID: %v", err)
	}
	if got == nil || got.Provider != "youtube" || got.SourceURL() != c.CanonicalURL {
		t.Fatalf("GetContentByID: unexpected %+v", got)
	}
	if missing, err := repo.GetContentByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetContentByID (missing): %v %v", missing, err)
	}

	uc, err := repo.GetUserContent(dbc, owner, c.ID)
	if err != nil || uc == nil {
		t.Fatalf("GetUserContent (owner): %v %v", uc, err)
	}
	if other, err := repo.GetUserContent(dbc, uuid.New(), c.ID); err != nil || other != nil {
		t.Fatalf("GetUserContent (stranger): %v %v", other, err)
	}
}
