package catalog_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/interngate-api/pkg/catalog"
)

func TestLoadValidatesAndSanitizes(t *testing.T) {
	registry, err := catalog.Load(filepath.Join("testdata", "registry.json"))
	require.NoError(t, err)
	require.Equal(t, []string{"demo"}, registry.IDs())

	definition, err := registry.Get("demo")
	require.NoError(t, err)
	require.Equal(t, "demo", definition.ID)
	require.Equal(t, "Demo Quiz", definition.Name)
	require.Equal(t, 2, definition.PassingThreshold)
	require.Equal(t, 3, definition.TotalQuestions())
	require.Equal(t, "Is 1 < 2?", definition.Questions[0].Prompt)
	require.Equal(t, "Pick blue", definition.Questions[1].Prompt)
}

func TestLoadShippedRegistry(t *testing.T) {
	registry, err := catalog.Load(filepath.Join("..", "..", "configs", "assessments.json"))
	require.NoError(t, err)

	definition, err := registry.Get("1")
	require.NoError(t, err)
	require.Equal(t, 20, definition.TotalQuestions())
	require.Equal(t, 15, definition.PassingThreshold)
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing questions":    `{"assessments":{"1":{"name":"x","passingThreshold":1}}}`,
		"single option":        `{"assessments":{"1":{"name":"x","passingThreshold":1,"questions":[{"prompt":"p","options":["a"],"correctOptionIndex":0}]}}}`,
		"unknown field":        `{"assessments":{"1":{"name":"x","passingThreshold":1,"questions":[{"prompt":"p","options":["a","b"],"correctOptionIndex":0,"hint":"no"}]}}}`,
		"correct out of range": `{"assessments":{"1":{"name":"x","passingThreshold":1,"questions":[{"prompt":"p","options":["a","b"],"correctOptionIndex":5}]}}}`,
		"threshold too high":   `{"assessments":{"1":{"name":"x","passingThreshold":3,"questions":[{"prompt":"p","options":["a","b"],"correctOptionIndex":0}]}}}`,
		"not json":             `{`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	registry, err := catalog.NewRegistry(catalog.Definition{
		ID:               "a",
		Name:             "A",
		PassingThreshold: 1,
		Questions:        []catalog.Question{{Prompt: "p", Options: []string{"x", "y"}, CorrectOptionIndex: 1}},
	})
	require.NoError(t, err)

	first, err := registry.Get("a")
	require.NoError(t, err)
	first.Questions[0].CorrectOptionIndex = 0
	first.Questions[0].Options[1] = "tampered"

	second, err := registry.Get("a")
	require.NoError(t, err)
	require.Equal(t, 1, second.Questions[0].CorrectOptionIndex)
	require.Equal(t, "y", second.Questions[0].Options[1])

	_, err = registry.Get("missing")
	require.True(t, errors.Is(err, catalog.ErrUnknownAssessment))
}

func TestScoreAndPassed(t *testing.T) {
	questions := make([]catalog.Question, 20)
	for i := range questions {
		questions[i] = catalog.Question{Prompt: "q", Options: []string{"a", "b", "c", "d"}, CorrectOptionIndex: i % 4}
	}
	definition := catalog.Definition{ID: "1", Name: "Python", PassingThreshold: 15, Questions: questions}

	require.Equal(t, 0, definition.Score(nil))
	require.Equal(t, 0, definition.Score(map[int]int{}))

	answers := map[int]int{}
	for i := 0; i < 15; i++ {
		answers[i] = i % 4
	}
	require.Equal(t, 15, definition.Score(answers))
	require.True(t, definition.Passed(15))

	answers[14] = (14 + 1) % 4
	require.Equal(t, 14, definition.Score(answers))
	require.False(t, definition.Passed(14))

	answers[99] = 0
	answers[-1] = 0
	require.Equal(t, 14, definition.Score(answers))

	require.True(t, definition.ValidAnswer(0, 3))
	require.False(t, definition.ValidAnswer(0, 4))
	require.False(t, definition.ValidAnswer(20, 0))
}
