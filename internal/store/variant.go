package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/rcdvgn/copypitch/internal/models"
)

// CreateVariant creates a variant and appends its ID to the owning
// template's variant list in the same transaction.
func (s *Store) CreateVariant(ctx context.Context, userID, templateID, content, name string, isDefault bool) (*models.Variant, error) {
	now := time.Now()
	variant := &models.Variant{
		ID:         uuid.New().String(),
		TemplateID: templateID,
		UserID:     userID,
		Name:       name,
		Content:    content,
		IsDefault:  isDefault,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		templates := tx.Bucket(bucketTemplates)
		tmpl, err := getTemplate(templates, templateID)
		if err != nil {
			return fmt.Errorf("template lookup failed: %w", err)
		}

		if err := putJSON(tx.Bucket(bucketVariants), variant.ID, variant); err != nil {
			return err
		}

		tmpl.VariantIDs = append(tmpl.VariantIDs, variant.ID)
		tmpl.UpdatedAt = now
		return putJSON(templates, tmpl.ID, tmpl)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create variant: %w", err)
	}
	return variant, nil
}

// GetVariant retrieves a variant by ID.
func (s *Store) GetVariant(ctx context.Context, id string) (*models.Variant, error) {
	var variant *models.Variant

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVariants).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		variant = &models.Variant{}
		return json.Unmarshal(data, variant)
	})
	if err != nil {
		return nil, err
	}
	return variant, nil
}

// ListVariants returns the template's variants with the default variant
// first. Remaining variants keep their creation order.
func (s *Store) ListVariants(ctx context.Context, templateID string) ([]*models.Variant, error) {
	var variants []*models.Variant

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketVariants).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var variant models.Variant
			if err := json.Unmarshal(v, &variant); err != nil {
				continue
			}
			if variant.TemplateID != templateID {
				continue
			}
			variants = append(variants, &variant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].CreatedAt.Before(variants[j].CreatedAt)
	})
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].IsDefault && !variants[j].IsDefault
	})
	return variants, nil
}

// GetDefaultVariant returns the template's default variant, or nil when the
// template has none.
func (s *Store) GetDefaultVariant(ctx context.Context, templateID string) (*models.Variant, error) {
	var found *models.Variant

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketVariants).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var variant models.Variant
			if err := json.Unmarshal(v, &variant); err != nil {
				continue
			}
			if variant.TemplateID == templateID && variant.IsDefault {
				found = &variant
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// SetDefaultVariant atomically clears the default flag on every variant of
// the template and sets it on the chosen one. The template's updated
// timestamp is refreshed.
func (s *Store) SetDefaultVariant(ctx context.Context, templateID, variantID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		variants := tx.Bucket(bucketVariants)

		chosen := variants.Get([]byte(variantID))
		if chosen == nil {
			return ErrNotFound
		}
		var chosenVariant models.Variant
		if err := json.Unmarshal(chosen, &chosenVariant); err != nil {
			return err
		}
		if chosenVariant.TemplateID != templateID {
			return fmt.Errorf("variant %s does not belong to template %s", variantID, templateID)
		}

		c := variants.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var variant models.Variant
			if err := json.Unmarshal(v, &variant); err != nil {
				continue
			}
			if variant.TemplateID != templateID {
				continue
			}
			isDefault := variant.ID == variantID
			if variant.IsDefault == isDefault {
				continue
			}
			variant.IsDefault = isDefault
			if err := putJSON(variants, variant.ID, &variant); err != nil {
				return err
			}
		}

		templates := tx.Bucket(bucketTemplates)
		tmpl, err := getTemplate(templates, templateID)
		if err != nil {
			return err
		}
		tmpl.UpdatedAt = time.Now()
		return putJSON(templates, tmpl.ID, tmpl)
	})
}

// UpdateVariantContent replaces a variant's content and refreshes its
// updated timestamp.
func (s *Store) UpdateVariantContent(ctx context.Context, id, content string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		variants := tx.Bucket(bucketVariants)
		data := variants.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var variant models.Variant
		if err := json.Unmarshal(data, &variant); err != nil {
			return err
		}
		variant.Content = content
		variant.UpdatedAt = time.Now()
		return putJSON(variants, variant.ID, &variant)
	})
}

// CountVariants returns the number of variants owned by the user across
// all templates.
func (s *Store) CountVariants(ctx context.Context, userID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketVariants).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var variant models.Variant
			if err := json.Unmarshal(v, &variant); err != nil {
				continue
			}
			if variant.UserID == userID {
				count++
			}
		}
		return nil
	})
	return count, err
}

// CountTemplateVariants returns the number of variants of one template.
func (s *Store) CountTemplateVariants(ctx context.Context, templateID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketVariants).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var variant models.Variant
			if err := json.Unmarshal(v, &variant); err != nil {
				continue
			}
			if variant.TemplateID == templateID {
				count++
			}
		}
		return nil
	})
	return count, err
}
