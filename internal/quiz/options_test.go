package quiz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOptionsMultipleChoice(t *testing.T) {
	v, err := ParseOptions(TypeMCSingle, []Option{
		{Text: "A", IsCorrect: false, Order: 0},
		{Text: "B", IsCorrect: true, Order: 1},
		{Text: "C", IsCorrect: false, Order: 2},
	})
	require.NoError(t, err)

	mc, ok := v.(MultipleChoice)
	require.True(t, ok)
	require.False(t, mc.Multi)
	require.True(t, mc.Correct[1])
	require.False(t, mc.Correct[0])
}

func TestParseOptionsTrueFalse(t *testing.T) {
	_, err := ParseOptions(TypeTrueFalse, []Option{
		{Text: "True", IsCorrect: true},
		{Text: "False", IsCorrect: false},
	})
	require.NoError(t, err)

	_, err = ParseOptions(TypeTrueFalse, []Option{
		{Text: "True", IsCorrect: true},
		{Text: "Maybe", IsCorrect: false},
	})
	require.Error(t, err)

	_, err = ParseOptions(TypeTrueFalse, []Option{
		{Text: "True", IsCorrect: true},
	})
	require.Error(t, err)
}

func TestParseOptionsOrderedList(t *testing.T) {
	v, err := ParseOptions(TypeOrderedList, []Option{
		{Text: "X", IsCorrect: true, Order: 0},
		{Text: "Y", IsCorrect: true, Order: 1},
		{Text: "Z", IsCorrect: true, Order: 2},
		{Text: "W", IsCorrect: true, Order: 3},
	})
	require.NoError(t, err)

	ol := v.(OrderedList)
	require.Equal(t, []int{0, 1, 2, 3}, ol.Canonical)

	_, err = ParseOptions(TypeOrderedList, []Option{
		{Text: "X", IsCorrect: false, Order: 0},
	})
	require.Error(t, err)
}

func TestParseOptionsNumericEstimation(t *testing.T) {
	v, err := ParseOptions(TypeNumericEstimation, []Option{
		{Text: "100", Order: 10},
	})
	require.NoError(t, err)

	ne := v.(NumericEstimation)
	require.Equal(t, 100.0, ne.Canonical)
	require.Equal(t, 10.0, ne.ToleranceP)

	_, err = ParseOptions(TypeNumericEstimation, []Option{
		{Text: "not-a-number", Order: 10},
	})
	require.Error(t, err)

	_, err = ParseOptions(TypeNumericEstimation, nil)
	require.Error(t, err)
}

func TestParseOptionsOpenText(t *testing.T) {
	v, err := ParseOptions(TypeOpenText, []Option{
		{Text: "Mona Lisa", IsCorrect: true, Order: 0},
		{Text: "La Gioconda", IsCorrect: true, Order: 1},
	})
	require.NoError(t, err)

	ot := v.(OpenText)
	require.Equal(t, []string{"Mona Lisa", "La Gioconda"}, ot.Accepted)
}

func TestParseOptionsPollUnscored(t *testing.T) {
	v, err := ParseOptions(TypePoll, []Option{
		{Text: "Red", IsCorrect: false},
		{Text: "Blue", IsCorrect: false},
	})
	require.NoError(t, err)

	p := v.(Poll)
	require.Len(t, p.OptionIDs, 2)
}

func TestItemAtFlattensRounds(t *testing.T) {
	q := Quiz{Rounds: []Round{
		{ID: "r1", Items: []Item{{ID: "i1"}, {ID: "i2"}}},
		{ID: "r2", Items: []Item{{ID: "i3"}}},
	}}

	require.Equal(t, 3, q.TotalItems())

	_, item, ok := q.ItemAt(2)
	require.True(t, ok)
	require.Equal(t, "i3", item.ID)

	_, _, ok = q.ItemAt(3)
	require.False(t, ok)
}
