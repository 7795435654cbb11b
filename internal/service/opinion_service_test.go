package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mtb-case-api/internal/models"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
)

type mockOpinionRepo struct {
	byKey map[string]*models.Opinion
	byID  map[string]*models.Opinion
	seq   int
}

func newMockOpinionRepo() *mockOpinionRepo {
	return &mockOpinionRepo{byKey: map[string]*models.Opinion{}, byID: map[string]*models.Opinion{}}
}

func (m *mockOpinionRepo) Upsert(ctx context.Context, caseID, authorID, content string) (*models.Opinion, error) {
	key := caseID + "|" + authorID
	if existing, ok := m.byKey[key]; ok {
		existing.Content = content
		existing.UpdatedAt = time.Now()
		return existing, nil
	}
	m.seq++
	op := &models.Opinion{ID: fmt.Sprintf("op-%d", m.seq), CaseID: caseID, AuthorID: authorID, Content: content}
	m.byKey[key] = op
	m.byID[op.ID] = op
	return op, nil
}

func (m *mockOpinionRepo) FindByID(ctx context.Context, id string) (*models.Opinion, error) {
	op, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return op, nil
}

func (m *mockOpinionRepo) UpdateContent(ctx context.Context, id, content string) (*models.Opinion, error) {
	op, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	op.Content = content
	return op, nil
}

func TestOpinionServiceSubmitUpserts(t *testing.T) {
	repo := newMockOpinionRepo()
	cases := newMockCaseRepo()
	cases.cases["c1"] = &models.Case{ID: "c1", OwnerID: "owner"}
	cases.shared["c1|reviewer"] = true
	svc := NewOpinionService(repo, cases, nil, nil)

	first, err := svc.Submit(context.Background(), "reviewer", "c1", OpinionRequest{Content: "Recommend surgery"})
	require.NoError(t, err)
	assert.Equal(t, "Recommend surgery", first.Content)

	content := "Stage T2<N0 disease; recommend lobectomy, then adjuvant chemo"
	second, err := svc.Submit(context.Background(), "reviewer", "c1", OpinionRequest{Content: content})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, content, second.Content)
	assert.Len(t, repo.byID, 1)
	assert.Equal(t, content, repo.byID[first.ID].Content)
}

func TestOpinionServiceKeepsContentAsSubmitted(t *testing.T) {
	repo := newMockOpinionRepo()
	cases := newMockCaseRepo()
	cases.cases["c1"] = &models.Case{ID: "c1", OwnerID: "owner"}
	cases.shared["c1|reviewer"] = true
	svc := NewOpinionService(repo, cases, nil, nil)

	for _, content := range []string{
		"ER<1%, PR<5%: endocrine therapy unlikely to help",
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"  indented\nsecond line",
	} {
		opinion, err := svc.Submit(context.Background(), "reviewer", "c1", OpinionRequest{Content: content})
		require.NoError(t, err)
		assert.Equal(t, content, opinion.Content)

		updated, err := svc.Update(context.Background(), "reviewer", opinion.ID, OpinionRequest{Content: content + " (revised)"})
		require.NoError(t, err)
		assert.Equal(t, content+" (revised)", updated.Content)
	}

	_, err := svc.Submit(context.Background(), "reviewer", "c1", OpinionRequest{Content: "   "})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestOpinionServiceSubmitAccess(t *testing.T) {
	cases := newMockCaseRepo()
	cases.cases["c1"] = &models.Case{ID: "c1", OwnerID: "owner"}
	svc := NewOpinionService(newMockOpinionRepo(), cases, nil, nil)

	_, err := svc.Submit(context.Background(), "owner", "c1", OpinionRequest{Content: "mine"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.Submit(context.Background(), "stranger", "c1", OpinionRequest{Content: "hello"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.Submit(context.Background(), "stranger", "missing", OpinionRequest{Content: "hello"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	_, err = svc.Submit(context.Background(), "stranger", "c1", OpinionRequest{Content: "   "})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestOpinionServiceUpdateAuthorOnly(t *testing.T) {
	repo := newMockOpinionRepo()
	repo.byID["op-1"] = &models.Opinion{ID: "op-1", CaseID: "c1", AuthorID: "reviewer", Content: "old"}
	svc := NewOpinionService(repo, newMockCaseRepo(), nil, nil)

	_, err := svc.Update(context.Background(), "other", "op-1", OpinionRequest{Content: "new"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.Update(context.Background(), "reviewer", "op-404", OpinionRequest{Content: "new"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	updated, err := svc.Update(context.Background(), "reviewer", "op-1", OpinionRequest{Content: "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Content)
}

type mockFeedbackRepo struct {
	entries []*models.Feedback
	err     error
}

func (m *mockFeedbackRepo) Create(ctx context.Context, feedback *models.Feedback) error {
	if m.err != nil {
		return m.err
	}
	feedback.ID = "fb-1"
	m.entries = append(m.entries, feedback)
	return nil
}

func TestProfileServiceGetDefaultsToEmpty(t *testing.T) {
	svc := NewProfileService(&mockProfileRepo{}, &mockFeedbackRepo{}, nil, nil)
	profile, err := svc.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", profile.UserID)
	assert.Nil(t, profile.FullName)
}

func TestProfileServiceUpdateMerges(t *testing.T) {
	profession := "Oncologist"
	profiles := &mockProfileRepo{profiles: map[string]*models.Profile{
		"user-1": {UserID: "user-1", Profession: &profession},
	}}
	svc := NewProfileService(profiles, &mockFeedbackRepo{}, nil, nil)

	name := " Dr. Ada\n"
	empty := ""
	profile, err := svc.Update(context.Background(), "user-1", UpdateProfileRequest{FullName: &name, PhoneNumber: &empty})
	require.NoError(t, err)
	require.NotNil(t, profile.FullName)
	assert.Equal(t, "Dr. Ada", *profile.FullName)
	assert.Equal(t, "Oncologist", *profile.Profession)
	assert.Nil(t, profile.PhoneNumber)
	assert.Same(t, profile, profiles.profiles["user-1"])
}

func TestProfileServiceUpdateFailure(t *testing.T) {
	svc := NewProfileService(&mockProfileRepo{upsertErr: errors.New("db down")}, &mockFeedbackRepo{}, nil, nil)
	name := "Ada"
	_, err := svc.Update(context.Background(), "user-1", UpdateProfileRequest{FullName: &name})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInternal.Code))
}

func TestProfileServiceSubmitFeedback(t *testing.T) {
	feedback := &mockFeedbackRepo{}
	svc := NewProfileService(&mockProfileRepo{}, feedback, nil, nil)

	entry, err := svc.SubmitFeedback(context.Background(), "user-1", FeedbackRequest{Content: "Great tool"})
	require.NoError(t, err)
	assert.Equal(t, "fb-1", entry.ID)
	require.Len(t, feedback.entries, 1)

	_, err = svc.SubmitFeedback(context.Background(), "user-1", FeedbackRequest{Content: ""})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.SubmitFeedback(context.Background(), "", FeedbackRequest{Content: "hi"})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
