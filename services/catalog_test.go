package services

import (
	"context"
	"testing"

	"tax-engagement-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	require.NoError(t, e.Catalog.SeedDefaults(ctx))
	defs, err := e.Store.ListActiveDefinitions(ctx)
	require.NoError(t, err)
	first := len(defs)
	assert.Greater(t, first, 0)

	// Reseeding upserts by slug; no duplicates.
	require.NoError(t, e.Catalog.SeedDefaults(ctx))
	defs, err = e.Store.ListActiveDefinitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, len(defs))
}

func TestSeedDefaultsAllValid(t *testing.T) {
	for _, def := range defaultCatalog() {
		def := def
		assert.NoError(t, def.Validate(), "seed %q", def.Slug)
	}
}

func TestSaveDefinitionDerivesSlug(t *testing.T) {
	e := newTestEngine()

	def := models.AchievementDefinition{
		Title:       "Hundred Clients Club",
		Points:      500,
		TargetRoles: models.RoleTags{models.RolePreparer},
		Criteria:    spec(models.ClientCountCriteria{Threshold: 100}),
	}
	require.NoError(t, e.Catalog.SaveDefinition(context.Background(), &def))
	assert.Equal(t, "hundred-clients-club", def.Slug)
}

func TestSaveDefinitionRejectsInvalid(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	bad := []models.AchievementDefinition{
		{
			Title:       "Zero Threshold",
			TargetRoles: models.RoleTags{models.RolePreparer},
			Criteria:    spec(models.ClientCountCriteria{Threshold: 0}),
		},
		{
			Title:       "No Roles",
			Criteria:    spec(models.ClientCountCriteria{Threshold: 1}),
			TargetRoles: nil,
		},
		{
			Title:       "No Criteria",
			TargetRoles: models.RoleTags{models.RolePreparer},
		},
		{
			Title:       "Negative Points",
			Points:      -10,
			TargetRoles: models.RoleTags{models.RolePreparer},
			Criteria:    spec(models.ClientCountCriteria{Threshold: 1}),
		},
	}
	for _, def := range bad {
		def := def
		assert.Error(t, e.Catalog.SaveDefinition(ctx, &def), "%s should be rejected", def.Title)
	}
}
