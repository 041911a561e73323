// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package store

import (
	"fmt"
	"strings"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/models"
)

// IndexSchema declares a secondary index over one record field.
type IndexSchema struct {
	Name  string `json:"name"`
	Field string `json:"field"`

	// Unique rejects a second record with the same value.
	Unique bool `json:"unique"`

	// MultiEntry indexes every element of an array field. A missing or
	// null field yields no entries.
	MultiEntry bool `json:"multi_entry"`
}

// CollectionSchema declares one collection. Records are keyed by their
// "id" field.
type CollectionSchema struct {
	Name    string        `json:"name"`
	Indexes []IndexSchema `json:"indexes"`
}

// Index returns the named index.
func (c CollectionSchema) Index(name string) (IndexSchema, bool) {
	for _, ix := range c.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return IndexSchema{}, false
}

// Schema is the versioned layout of the store. Bumping Version is the only
// way to add collections or change indexes of an existing database.
type Schema struct {
	Version     int                `json:"version"`
	Collections []CollectionSchema `json:"collections"`
}

// Collection returns the named collection.
func (s Schema) Collection(name string) (CollectionSchema, bool) {
	for _, c := range s.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return CollectionSchema{}, false
}

// Validate checks names are usable as key segments and unique.
func (s Schema) Validate() error {
	if s.Version < 1 {
		return fmt.Errorf("schema version must be >= 1, got %d", s.Version)
	}
	seen := make(map[string]bool, len(s.Collections))
	for _, c := range s.Collections {
		if err := validName(c.Name); err != nil {
			return fmt.Errorf("collection %q: %w", c.Name, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("collection %q declared twice", c.Name)
		}
		seen[c.Name] = true

		ixSeen := make(map[string]bool, len(c.Indexes))
		for _, ix := range c.Indexes {
			if err := validName(ix.Name); err != nil {
				return fmt.Errorf("index %s.%s: %w", c.Name, ix.Name, err)
			}
			if ix.Field == "" {
				return fmt.Errorf("index %s.%s: field is required", c.Name, ix.Name)
			}
			if ixSeen[ix.Name] {
				return fmt.Errorf("index %s.%s declared twice", c.Name, ix.Name)
			}
			ixSeen[ix.Name] = true
		}
	}
	return nil
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if strings.ContainsRune(name, sep) {
		return fmt.Errorf("name contains NUL")
	}
	return nil
}

// SchemaVersion is the current version of DefaultSchema.
const SchemaVersion = 1

// DefaultSchema returns the collections the application uses.
func DefaultSchema() Schema {
	return Schema{
		Version: SchemaVersion,
		Collections: []CollectionSchema{
			{
				Name: models.CollectionSOPs,
				Indexes: []IndexSchema{
					{Name: "department", Field: "department"},
					{Name: "status", Field: "status"},
				},
			},
			{
				Name: models.CollectionTasks,
				Indexes: []IndexSchema{
					{Name: "assigned_to", Field: "assigned_to", MultiEntry: true},
					{Name: "status", Field: "status"},
					{Name: "scheduled_date", Field: "scheduled_date"},
				},
			},
			{
				Name: models.CollectionTemplates,
				Indexes: []IndexSchema{
					{Name: "department", Field: "department"},
					{Name: "category", Field: "category"},
				},
			},
			{
				Name: models.CollectionUsers,
				Indexes: []IndexSchema{
					{Name: "email", Field: "email", Unique: true},
					{Name: "department", Field: "department"},
				},
			},
			{
				Name: models.CollectionPendingChanges,
				Indexes: []IndexSchema{
					{Name: "timestamp", Field: "timestamp"},
					{Name: "store_name", Field: "store_name"},
				},
			},
		},
	}
}
