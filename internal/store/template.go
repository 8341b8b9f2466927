package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/rcdvgn/copypitch/internal/models"
)

// CreateTemplate creates a template with an empty variant list.
func (s *Store) CreateTemplate(ctx context.Context, userID, name, category string, initialVars map[string]string) (*models.Template, error) {
	if name == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if initialVars == nil {
		initialVars = map[string]string{}
	}

	now := time.Now()
	tmpl := &models.Template{
		ID:         uuid.New().String(),
		UserID:     userID,
		Name:       name,
		Category:   category,
		Variables:  initialVars,
		VariantIDs: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketTemplates), tmpl.ID, tmpl)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	return tmpl, nil
}

// GetTemplate retrieves a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	var tmpl *models.Template

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTemplates).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		tmpl = &models.Template{}
		return json.Unmarshal(data, tmpl)
	})
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

// ListTemplates returns the user's templates, most recently created first.
func (s *Store) ListTemplates(ctx context.Context, userID string, filter models.TemplateListFilter) ([]*models.Template, error) {
	var templates []*models.Template

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTemplates).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var tmpl models.Template
			if err := json.Unmarshal(v, &tmpl); err != nil {
				continue
			}
			if tmpl.UserID != userID {
				continue
			}
			if filter.Category != "" && tmpl.Category != filter.Category {
				continue
			}
			if filter.Search != "" {
				search := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(tmpl.Name), search) {
					continue
				}
			}
			templates = append(templates, &tmpl)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(templates) {
			return []*models.Template{}, nil
		}
		templates = templates[filter.Offset:]
	}
	if filter.Limit > 0 && len(templates) > filter.Limit {
		templates = templates[:filter.Limit]
	}
	return templates, nil
}

// UpdateTemplateVariables replaces the template's persisted variable map
// and refreshes its updated timestamp.
func (s *Store) UpdateTemplateVariables(ctx context.Context, id string, variables map[string]string) error {
	if variables == nil {
		variables = map[string]string{}
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTemplates)
		tmpl, err := getTemplate(bucket, id)
		if err != nil {
			return err
		}
		tmpl.Variables = variables
		tmpl.UpdatedAt = time.Now()
		return putJSON(bucket, tmpl.ID, tmpl)
	})
}

// DeleteTemplate removes a template and every variant it owns. The editing
// session never calls this; it serves the administrative API path.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		templates := tx.Bucket(bucketTemplates)
		if templates.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		if err := templates.Delete([]byte(id)); err != nil {
			return err
		}

		variants := tx.Bucket(bucketVariants)
		c := variants.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var variant models.Variant
			if err := json.Unmarshal(v, &variant); err != nil {
				continue
			}
			if variant.TemplateID != id {
				continue
			}
			if err := variants.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountTemplates returns the number of templates owned by the user.
func (s *Store) CountTemplates(ctx context.Context, userID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTemplates).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var tmpl models.Template
			if err := json.Unmarshal(v, &tmpl); err != nil {
				continue
			}
			if tmpl.UserID == userID {
				count++
			}
		}
		return nil
	})
	return count, err
}

func getTemplate(bucket *bolt.Bucket, id string) (*models.Template, error) {
	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, ErrNotFound
	}
	tmpl := &models.Template{}
	if err := json.Unmarshal(data, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func putJSON(bucket *bolt.Bucket, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	return bucket.Put([]byte(id), data)
}
