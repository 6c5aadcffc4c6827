package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"missing draft", http.StatusNotFound, "draft_not_found", "Draft not found"},
		{"bad patch", http.StatusUnprocessableEntity, "invalid_patch", "name: required for completion"},
		{"locked intent", http.StatusConflict, "intent_locked", "Campaign intent is locked; use an intent migration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message))

			resp := w.Result()
			defer resp.Body.Close()

			assert.Equal(t, tt.statusCode, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var body apiError
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.errorCode, body.Error)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestWriteJSON_OKLeavesStatusToFirstWrite(t *testing.T) {
	w := httptest.NewRecorder()
	campaign := models.Campaign{Name: "Shadows over Greyhaven", System: "D&D 5e"}

	require.NoError(t, WriteJSON(w, http.StatusOK, campaign))

	resp := w.Result()
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got models.Campaign
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "Shadows over Greyhaven", got.Name)
}

func TestWriteJSON_CreatedStatus(t *testing.T) {
	w := httptest.NewRecorder()
	draft := models.DraftSnapshot{CurrentStep: models.StepBasics}

	require.NoError(t, WriteJSON(w, http.StatusCreated, draft))

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestWriteJSON_UnencodableData(t *testing.T) {
	w := httptest.NewRecorder()
	assert.Error(t, WriteJSON(w, http.StatusOK, make(chan int)))
}
