package swaperrors

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteJSONKnownCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, New(CodeSwapNotFound, "swap %s not found", "abc123"))

	require.Equal(t, 404, rec.Code)

	var body Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, CodeSwapNotFound, body.Code)
	require.Contains(t, body.Message, "abc123")
}

func TestWriteJSONUnknownErrorFallsBackToInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, errors.New("boom"))

	require.Equal(t, 500, rec.Code)

	var body Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, CodeInternal, body.Code)
}

func TestWrapPreservesMessage(t *testing.T) {
	wrapped := Wrap(CodeNoRoute, errors.New("no path to destination"))
	require.Equal(t, "no path to destination", wrapped.Message)
	require.Contains(t, wrapped.Error(), "LN.2")
}
