package quiz

import (
	"fmt"
	"sort"
)

// Variant is the clean, per-type view of a Question's Options that Grader
// and Scorer are written against, so they never see the raw tagged list
// (spec §3.1, Design note "Option polymorphism": "define a sum-type per
// question kind and a parser that converts the stored row shape into the
// variant at load time").
type Variant interface {
	isVariant()
}

// MultipleChoice covers mc_single, mc_multi and true_false: each option is
// an (id, text, isCorrect) triple; multi accepts any subset matching the
// full correct set.
type MultipleChoice struct {
	OptionIDs []int // stable ids = original slice index
	Texts     map[int]string
	Correct   map[int]bool
	Multi     bool
}

func (MultipleChoice) isVariant() {}

// Poll carries no correctness information; answers are aggregated only.
type Poll struct {
	OptionIDs []int
	Texts     map[int]string
}

func (Poll) isVariant() {}

// OrderedList's canonical order is carried by each option's Order field.
type OrderedList struct {
	Canonical []int // option ids (original indices) in canonical order
	Texts     map[int]string
}

func (OrderedList) isVariant() {}

// NumericEstimation: one option carries the canonical numeric answer as
// Text and the tolerance percentage as Order.
type NumericEstimation struct {
	Canonical float64
	ToleranceP float64
}

func (NumericEstimation) isVariant() {}

// OpenText: option[0] is primary; every isCorrect=true option is accepted.
type OpenText struct {
	Accepted []string
}

func (OpenText) isVariant() {}

// ParseOptions converts a Question's raw Options into the clean Variant for
// its type. It is pure and returns an error for malformed encodings (e.g. a
// numeric_estimation question with zero options) rather than panicking —
// malformed quiz content is an authoring-time bug, not something Grader
// should paper over at grading time.
func ParseOptions(t QuestionType, opts []Option) (Variant, error) {
	switch t {
	case TypeMCSingle:
		return parseMultipleChoice(opts, false)
	case TypeTrueFalse:
		return parseTrueFalse(opts)
	case TypeMCMulti:
		return parseMultipleChoice(opts, true)
	case TypePoll:
		return parsePoll(opts)
	case TypeOrderedList:
		return parseOrderedList(opts)
	case TypeNumericEstimation, TypeYearGuess:
		return parseNumericEstimation(opts)
	case TypeOpenText, TypeTitleGuess, TypeArtistGuess:
		return parseOpenText(opts)
	default:
		return nil, fmt.Errorf("quiz: unknown question type %q", t)
	}
}

func parseMultipleChoice(opts []Option, multi bool) (Variant, error) {
	if len(opts) == 0 {
		return nil, fmt.Errorf("quiz: multiple-choice question has no options")
	}
	mc := MultipleChoice{
		Texts:   make(map[int]string, len(opts)),
		Correct: make(map[int]bool, len(opts)),
		Multi:   multi,
	}
	for i, o := range opts {
		mc.OptionIDs = append(mc.OptionIDs, i)
		mc.Texts[i] = o.Text
		mc.Correct[i] = o.IsCorrect
	}
	return mc, nil
}

func parseTrueFalse(opts []Option) (Variant, error) {
	if len(opts) != 2 {
		return nil, fmt.Errorf("quiz: true/false question must have exactly two options, got %d", len(opts))
	}
	correctCount := 0
	for _, o := range opts {
		if o.Text != "True" && o.Text != "False" {
			return nil, fmt.Errorf("quiz: true/false option text must be \"True\" or \"False\", got %q", o.Text)
		}
		if o.IsCorrect {
			correctCount++
		}
	}
	if correctCount != 1 {
		return nil, fmt.Errorf("quiz: true/false question must have exactly one correct option, got %d", correctCount)
	}
	return parseMultipleChoice(opts, false)
}

func parsePoll(opts []Option) (Variant, error) {
	p := Poll{Texts: make(map[int]string, len(opts))}
	for i, o := range opts {
		p.OptionIDs = append(p.OptionIDs, i)
		p.Texts[i] = o.Text
	}
	return p, nil
}

func parseOrderedList(opts []Option) (Variant, error) {
	if len(opts) == 0 {
		return nil, fmt.Errorf("quiz: ordered-list question has no options")
	}
	type idx struct {
		id    int
		order int
	}
	idxs := make([]idx, 0, len(opts))
	ol := OrderedList{Texts: make(map[int]string, len(opts))}
	for i, o := range opts {
		if !o.IsCorrect {
			return nil, fmt.Errorf("quiz: ordered-list option %d is not marked isCorrect", i)
		}
		idxs = append(idxs, idx{id: i, order: o.Order})
		ol.Texts[i] = o.Text
	}
	sort.SliceStable(idxs, func(a, b int) bool { return idxs[a].order < idxs[b].order })
	for _, e := range idxs {
		ol.Canonical = append(ol.Canonical, e.id)
	}
	return ol, nil
}

func parseNumericEstimation(opts []Option) (Variant, error) {
	if len(opts) != 1 {
		return nil, fmt.Errorf("quiz: numeric-estimation question must have exactly one option, got %d", len(opts))
	}
	var canonical float64
	if _, err := fmt.Sscanf(opts[0].Text, "%g", &canonical); err != nil {
		return nil, fmt.Errorf("quiz: numeric-estimation canonical answer %q is not numeric: %w", opts[0].Text, err)
	}
	return NumericEstimation{
		Canonical:  canonical,
		ToleranceP: float64(opts[0].Order),
	}, nil
}

func parseOpenText(opts []Option) (Variant, error) {
	if len(opts) == 0 {
		return nil, fmt.Errorf("quiz: open-text question has no options")
	}
	ot := OpenText{Accepted: []string{opts[0].Text}}
	for i, o := range opts {
		if i == 0 {
			continue
		}
		if o.IsCorrect {
			ot.Accepted = append(ot.Accepted, o.Text)
		}
	}
	return ot, nil
}
