//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package dictionary

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trpc.group/trpc-go/trpc-query-go/internal/text"
)

// Entries is the content of one tenant.
type Entries struct {
	Synonyms      map[string][]string `yaml:"synonyms"`
	Canonical     map[string]string   `yaml:"canonical"`
	Stopwords     []string            `yaml:"stopwords"`
	SlotTemplates []SlotTemplate      `yaml:"slotTemplates"`
}

// File is the YAML layout read by LoadFile, keyed by tenant.
type File struct {
	Tenants map[string]Entries `yaml:"tenants"`
}

type tenantData struct {
	synonyms  map[string][]string
	canonical map[string]string
	stopwords map[string]struct{}
	// templates is keyed by intent then channel.
	templates map[string]map[string]*SlotTemplate
}

// Static is an immutable in-memory Dictionary. Term lookups are width and
// case insensitive.
type Static struct {
	tenants map[string]*tenantData
}

// NewStatic builds a Static dictionary from per tenant entries.
func NewStatic(tenants map[string]Entries) *Static {
	s := &Static{tenants: make(map[string]*tenantData, len(tenants))}
	for tenant, e := range tenants {
		td := &tenantData{
			synonyms:  make(map[string][]string, len(e.Synonyms)),
			canonical: make(map[string]string, len(e.Canonical)),
			stopwords: make(map[string]struct{}, len(e.Stopwords)),
			templates: make(map[string]map[string]*SlotTemplate),
		}
		for k, v := range e.Synonyms {
			td.synonyms[text.Fold(k)] = append([]string(nil), v...)
		}
		for k, v := range e.Canonical {
			td.canonical[text.Fold(k)] = v
		}
		for _, w := range e.Stopwords {
			td.stopwords[text.Fold(w)] = struct{}{}
		}
		for i := range e.SlotTemplates {
			tpl := e.SlotTemplates[i]
			channel := tpl.Channel
			if channel == "" {
				channel = AnyChannel
			}
			if td.templates[tpl.Intent] == nil {
				td.templates[tpl.Intent] = make(map[string]*SlotTemplate)
			}
			td.templates[tpl.Intent][channel] = &tpl
		}
		s.tenants[tenant] = td
	}
	return s
}

// ParseFile decodes a YAML dictionary.
func ParseFile(data []byte) (*Static, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	return NewStatic(f.Tenants), nil
}

// LoadFile reads a YAML dictionary from path.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return ParseFile(data)
}

// scopes returns the tenant data to consult, most specific first.
func (s *Static) scopes(tenant string) []*tenantData {
	var out []*tenantData
	if td, ok := s.tenants[tenant]; ok && tenant != DefaultTenant {
		out = append(out, td)
	}
	if td, ok := s.tenants[DefaultTenant]; ok {
		out = append(out, td)
	}
	return out
}

// LookupSynonyms implements Dictionary.
func (s *Static) LookupSynonyms(_ context.Context, term, tenant string) ([]string, error) {
	key := text.Fold(term)
	for _, td := range s.scopes(tenant) {
		if v, ok := td.synonyms[key]; ok {
			return append([]string(nil), v...), nil
		}
	}
	return nil, nil
}

// LookupCanonicalForm implements Dictionary.
func (s *Static) LookupCanonicalForm(_ context.Context, term, tenant string) (string, bool, error) {
	key := text.Fold(term)
	for _, td := range s.scopes(tenant) {
		if v, ok := td.canonical[key]; ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

// IsStopword implements Dictionary.
func (s *Static) IsStopword(_ context.Context, term, tenant string) (bool, error) {
	key := text.Fold(term)
	for _, td := range s.scopes(tenant) {
		if _, ok := td.stopwords[key]; ok {
			return true, nil
		}
	}
	return false, nil
}

// GetSlotTemplate implements Dictionary. A channel specific template wins
// over the AnyChannel one.
func (s *Static) GetSlotTemplate(_ context.Context, intentCode, tenant, channel string) (*SlotTemplate, error) {
	for _, td := range s.scopes(tenant) {
		byChannel := td.templates[intentCode]
		if tpl, ok := byChannel[channel]; ok {
			return tpl, nil
		}
		if tpl, ok := byChannel[AnyChannel]; ok {
			return tpl, nil
		}
	}
	return nil, ErrNotFound
}
