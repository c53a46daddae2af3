//
// Tencent is pleased to support the open source community by making trpc-query-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-query-go is licensed under the Apache License Version 2.0.
//
//

package pipeline

import (
	"trpc.group/trpc-go/trpc-query-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/dictionary"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/phonetic"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/prefix"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/stage"
	"trpc.group/trpc-go/trpc-query-go/knowledge/query/synonym"
	"trpc.group/trpc-go/trpc-query-go/model"
)

// Deps holds the collaborators injected into the stages. Every field is
// optional: a missing dictionary degrades to identity behaviour, a missing
// phonetic matcher or prefix index makes its stage not applicable and a
// missing model provider fails the model backed stages.
type Deps struct {
	Dictionary    dictionary.Dictionary
	Phonetic      phonetic.Matcher
	Prefix        prefix.Index
	Embedders     embedder.Provider
	Synonyms      synonym.Store
	Models        model.Provider
	SlotValidator stage.SlotValidator
}

// Constructor builds one stage from the dependencies.
type Constructor func(d Deps) query.Stage

// Registration binds a stage name to its constructor.
type Registration struct {
	Name string
	New  Constructor
}

// Registrations lists every stage in execution order.
var Registrations = []Registration{
	{query.StageNormalization, func(d Deps) query.Stage {
		return stage.NewNormalization(d.Dictionary)
	}},
	{query.StagePhoneticCorrection, func(d Deps) query.Stage {
		return stage.NewPhoneticCorrection(d.Phonetic)
	}},
	{query.StagePrefixCompletion, func(d Deps) query.Stage {
		return stage.NewPrefixCompletion(d.Prefix)
	}},
	{query.StageSynonymRecall, func(d Deps) query.Stage {
		return stage.NewSynonymRecall(d.Embedders, d.Synonyms, d.Dictionary)
	}},
	{query.StageSemanticAlignment, func(d Deps) query.Stage {
		return stage.NewSemanticAlignment(d.Dictionary)
	}},
	{query.StageIntentExtraction, func(d Deps) query.Stage {
		return stage.NewIntentExtraction(d.Models)
	}},
	{query.StageSlotFilling, func(d Deps) query.Stage {
		return stage.NewSlotFilling(d.Dictionary,
			stage.WithSlotValidator(d.SlotValidator),
			stage.WithQuestionModels(d.Models))
	}},
	{query.StageRetrievalRewrite, func(d Deps) query.Stage {
		return stage.NewRetrievalRewrite(d.Dictionary)
	}},
	{query.StageExpansion, func(d Deps) query.Stage {
		return stage.NewExpansion(d.Models)
	}},
	{query.StageExpansionStrategy, func(d Deps) query.Stage {
		return stage.NewExpansionStrategy(d.Dictionary)
	}},
}

// BuildStages constructs the registered stages in order.
func BuildStages(d Deps) []query.Stage {
	stages := make([]query.Stage, 0, len(Registrations))
	for _, r := range Registrations {
		stages = append(stages, r.New(d))
	}
	return stages
}
