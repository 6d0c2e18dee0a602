package forms

import (
	"context"
	"strings"

	"swish-forms/internal/blocks"
	"swish-forms/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resolver finds the definition of a submitted form.
type Resolver struct {
	db       *gorm.DB
	registry *Registry
	log      *zap.Logger
}

func NewResolver(db *gorm.DB, registry *Registry, log *zap.Logger) *Resolver {
	return &Resolver{db: db, registry: registry, log: log}
}

// Resolve looks formID up in the registry first, then scans published page
// content for a block whose formId attribute matches. When nothing matches
// the returned definition has no fields.
func (r *Resolver) Resolve(ctx context.Context, formID string) (FormDefinition, error) {
	empty := FormDefinition{FormID: formID}
	if formID == "" {
		return empty, nil
	}

	if def, ok, err := r.registry.Get(ctx, formID); err != nil {
		return empty, err
	} else if ok {
		return def, nil
	}

	var pages []models.Page
	err := r.db.WithContext(ctx).
		Where(`status = ? AND content LIKE ? ESCAPE '\'`, "publish", containsPattern(formID)).
		Order("id ASC").
		Find(&pages).Error
	if err != nil {
		return empty, err
	}

	for _, page := range pages {
		block, ok := blocks.FindFirst(blocks.Parse(page.Content), blocks.HasAttr("formId", formID))
		if !ok {
			continue
		}
		r.log.Debug("Resolved form from page content",
			zap.String("form_id", formID),
			zap.Uint("page_id", page.ID),
			zap.String("block", block.Name))
		return DefinitionFromAttrs(block.Attrs), nil
	}

	r.log.Warn("No form definition found", zap.String("form_id", formID))
	return empty, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern matches s literally anywhere in a LIKE ... ESCAPE '\'
// comparison.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
