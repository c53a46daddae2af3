//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

// Package dictionary defines the tenant scoped dictionary port used by the
// query stages and provides in-memory and caching implementations.
package dictionary

import (
	"context"
	"errors"
)

// DefaultTenant holds entries shared by every tenant. Tenant specific entries
// take precedence.
const DefaultTenant = "*"

// AnyChannel matches every channel in slot template lookups.
const AnyChannel = "*"

// ErrNotFound is returned by GetSlotTemplate when no template exists.
var ErrNotFound = errors.New("dictionary: not found")

// Dictionary resolves synonyms, canonical terms, stopwords and slot templates.
// Implementations must be safe for concurrent use.
type Dictionary interface {
	// LookupSynonyms returns curated synonyms of term, best first.
	LookupSynonyms(ctx context.Context, term, tenant string) ([]string, error)
	// LookupCanonicalForm returns the canonical domain term for term.
	LookupCanonicalForm(ctx context.Context, term, tenant string) (string, bool, error)
	// IsStopword reports whether term carries no retrieval meaning.
	IsStopword(ctx context.Context, term, tenant string) (bool, error)
	// GetSlotTemplate returns the slot template of an intent, or ErrNotFound.
	GetSlotTemplate(ctx context.Context, intentCode, tenant, channel string) (*SlotTemplate, error)
}

// SlotSpec describes one slot of an intent.
type SlotSpec struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Required    bool   `yaml:"required" json:"required"`
	// Pattern is a regular expression used to extract and validate the value.
	Pattern string `yaml:"pattern" json:"pattern,omitempty"`
	// Question is asked when the slot is missing.
	Question string `yaml:"question" json:"question,omitempty"`
}

// SlotTemplate lists the slots of an intent.
type SlotTemplate struct {
	Intent  string     `yaml:"intent" json:"intent"`
	Channel string     `yaml:"channel" json:"channel,omitempty"`
	Slots   []SlotSpec `yaml:"slots" json:"slots"`
}

// Required returns the required slots in template order.
func (t *SlotTemplate) Required() []SlotSpec {
	var out []SlotSpec
	for _, s := range t.Slots {
		if s.Required {
			out = append(out, s)
		}
	}
	return out
}

// Noop is a Dictionary with no entries.
type Noop struct{}

// LookupSynonyms implements Dictionary.
func (Noop) LookupSynonyms(context.Context, string, string) ([]string, error) { return nil, nil }

// LookupCanonicalForm implements Dictionary.
func (Noop) LookupCanonicalForm(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}

// IsStopword implements Dictionary.
func (Noop) IsStopword(context.Context, string, string) (bool, error) { return false, nil }

// GetSlotTemplate implements Dictionary.
func (Noop) GetSlotTemplate(context.Context, string, string, string) (*SlotTemplate, error) {
	return nil, ErrNotFound
}
