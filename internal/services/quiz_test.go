package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-content/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/domain/content"
	learndom "github.com/yungbote/neurobridge-content/internal/domain/learning"
	"github.com/yungbote/neurobridge-content/internal/platform/apierr"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

func TestGradeQuestion(t *testing.T) {
	mc := &types.QuizQuestion{Kind: learndom.QuestionMultipleChoice, Answer: "Mars", Options: jsonOf([]string{"Venus", "Mars", "Jupiter"})}
	short := &types.QuizQuestion{Kind: learndom.QuestionShortAnswer, Answer: "iron oxide dust"}

	cases := []struct {
		name string
		q    *types.QuizQuestion
		resp string
		want string
	}{
		{"mc_exact", mc, "Mars", learndom.OutcomeCorrect},
		{"mc_case_and_punct", mc, "  mars. ", learndom.OutcomeCorrect},
		{"mc_letter", mc, "b", learndom.OutcomeCorrect},
		{"mc_wrong_letter", mc, "a", learndom.OutcomeIncorrect},
		{"mc_wrong", mc, "Venus", learndom.OutcomeIncorrect},
		{"short_full", short, "It is iron oxide dust", learndom.OutcomeCorrect},
		{"short_partial", short, "iron dust", learndom.OutcomePartial},
		{"short_too_little", short, "some iron", learndom.OutcomeIncorrect},
		{"short_wrong", short, "water ice", learndom.OutcomeIncorrect},
		{"empty", short, "", learndom.OutcomeIncorrect},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, gradeQuestion(tc.q, tc.resp))
		})
	}
}

func TestGenerateFallsBackToCloze(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	_, _, err := f.repo.ReplaceConcepts(f.dbc, f.item.ID, []*types.Concept{
		{Key: "mars", Name: "Mars", Importance: 1},
		{Key: "phobos", Name: "Phobos", Importance: 0.6},
	}, nil)
	require.NoError(t, err)

	svc := NewQuizService(logger.Nop(), &fakeGateway{err: ErrNoLLMOutput}, f.repo, QuizConfig{})
	set, err := svc.Generate(context.Background(), GenerateQuizInput{ContentID: f.item.ID, UserID: f.user, QuestionCount: 2})
	require.NoError(t, err)
	assert.True(t, set.UsedFallback)
	assert.Equal(t, "medium", set.Difficulty)
	require.Len(t, set.Questions, 2)
	for _, q := range set.Questions {
		assert.Equal(t, learndom.QuestionShortAnswer, q.Kind)
		assert.Contains(t, q.Prompt, blank)
		assert.NotEmpty(t, jsonStrings(q.ConceptKeys))
	}

	seed, err := f.repo.LatestArtifact(f.dbc, f.item.ID, content.ArtifactQuizSeed)
	require.NoError(t, err)
	require.NotNil(t, seed)
	assert.True(t, seed.UsedFallback)
}

func TestGenerateKeepsOnlyValidModelQuestions(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	_, _, err := f.repo.ReplaceConcepts(f.dbc, f.item.ID, []*types.Concept{{Key: "mars", Name: "Mars"}}, nil)
	require.NoError(t, err)

	gw := &fakeGateway{obj: map[string]any{"questions": []any{
		map[string]any{"kind": "multiple_choice", "prompt": "Which planet is red?", "options": []any{"Mars", "Venus"}, "answer": "Mars", "concept_keys": []any{"Mars", "unknown"}},
		map[string]any{"kind": "multiple_choice", "prompt": "Answer missing from options", "options": []any{"A", "B"}, "answer": "C"},
		map[string]any{"kind": "essay", "prompt": "Unsupported", "answer": "x"},
		map[string]any{"kind": "short_answer", "prompt": "Name a moon of Mars", "answer": "Phobos"},
	}}}
	svc := NewQuizService(logger.Nop(), gw, f.repo, QuizConfig{})
	set, err := svc.Generate(context.Background(), GenerateQuizInput{ContentID: f.item.ID, UserID: f.user, Difficulty: "Hard"})
	require.NoError(t, err)
	assert.False(t, set.UsedFallback)
	assert.Equal(t, "hard", set.Difficulty)
	require.Len(t, set.Questions, 2)
	assert.Equal(t, []string{"mars"}, jsonStrings(set.Questions[0].ConceptKeys))
	assert.Equal(t, 1, set.Questions[1].Position)
}

func TestGenerateRejectsUnknownDifficulty(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	svc := NewQuizService(logger.Nop(), &fakeGateway{}, f.repo, QuizConfig{})
	_, err := svc.Generate(context.Background(), GenerateQuizInput{ContentID: f.item.ID, Difficulty: "impossible"})
	require.ErrorIs(t, err, apierr.ErrInvalidArgument)
}

func TestSubmitIsIdempotentAndUpdatesMastery(t *testing.T) {
	f := newLearningFixture(t)
	set := testutil.SeedQuizSet(t, context.Background(), f.db, f.user, f.item.ID)
	svc := NewQuizService(logger.Nop(), &fakeGateway{}, f.repo, QuizConfig{MasteryRate: 0.5})

	in := SubmitQuizInput{
		UserID:    f.user,
		QuizSetID: set.ID,
		Answers: []QuizResponse{
			{QuestionID: set.Questions[0].ID, Response: "mars"},
			{QuestionID: set.Questions[1].ID, Response: "iron dust"},
		},
		IdempotencyKey: "attempt-1",
	}
	first, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, 1, first.Attempt.CorrectCount)
	assert.InDelta(t, 0.75, first.Attempt.Score, 1e-9)

	in.Answers[1].Response = "something else entirely"
	second, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	assert.Equal(t, first.Attempt.Score, second.Attempt.Score)

	rows, err := f.repo.ListMastery(f.dbc, f.user, f.item.ID)
	require.NoError(t, err)
	scores, attempts := map[string]float64{}, map[string]int{}
	for _, r := range rows {
		scores[r.ConceptKey] = r.Score
		attempts[r.ConceptKey] = r.Attempts
	}
	// mars is tagged on both questions: correct, then partial.
	assert.InDelta(t, 0.5, scores["mars"], 1e-9)
	assert.Equal(t, 2, attempts["mars"])
	assert.InDelta(t, 0.25, scores["iron_oxide"], 1e-9)
	assert.Equal(t, 1, attempts["iron_oxide"])

	report, err := svc.Report(context.Background(), first.Attempt.ID)
	require.NoError(t, err)
	assert.Len(t, report.Attempt.Answers, 2)
}

func TestSubmitUnknownSet(t *testing.T) {
	f := newLearningFixture(t)
	svc := NewQuizService(logger.Nop(), &fakeGateway{}, f.repo, QuizConfig{})
	_, err := svc.Submit(context.Background(), SubmitQuizInput{UserID: f.user, QuizSetID: uuid.New(), IdempotencyKey: "k"})
	require.ErrorIs(t, err, apierr.ErrNotFound)
}
