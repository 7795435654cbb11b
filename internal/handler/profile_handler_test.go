package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/internal/service"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
)

type profileServiceMock struct {
	update   service.UpdateProfileRequest
	feedback service.FeedbackRequest
	err      error
}

func (m *profileServiceMock) Get(ctx context.Context, userID string) (*models.Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Profile{UserID: userID}, nil
}

func (m *profileServiceMock) Update(ctx context.Context, userID string, req service.UpdateProfileRequest) (*models.Profile, error) {
	m.update = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Profile{UserID: userID, HospitalName: req.HospitalName}, nil
}

func (m *profileServiceMock) SubmitFeedback(ctx context.Context, userID string, req service.FeedbackRequest) (*models.Feedback, error) {
	m.feedback = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Feedback{ID: "f1", UserID: userID, Content: req.Content}, nil
}

func TestProfileHandlerGetAndUpdate(t *testing.T) {
	svc := &profileServiceMock{}
	h := NewProfileHandler(svc)

	c, w := newContext(http.MethodGet, "/profile", "", "u1")
	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"u1"`)

	c, w = newContext(http.MethodPut, "/profile", `{"hospitalName":"Charité"}`, "u1")
	h.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.update.HospitalName)
	assert.Equal(t, "Charité", *svc.update.HospitalName)
	assert.Nil(t, svc.update.FullName)
}

func TestProfileHandlerFeedback(t *testing.T) {
	svc := &profileServiceMock{}
	h := NewProfileHandler(svc)

	c, w := newContext(http.MethodPost, "/feedback", `{"content":"Great tool"}`, "u1")
	h.SubmitFeedback(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Great tool", svc.feedback.Content)

	svc.err = appErrors.Clone(appErrors.ErrValidation, "content is required")
	c, w = newContext(http.MethodPost, "/feedback", `{"content":""}`, "u1")
	h.SubmitFeedback(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
