package render

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/settlement/internal/money"
)

type withdrawalRequest struct {
	Amount money.Cents `json:"amount" validate:"gt=0"`
}

func TestRender_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, map[string]any{"available": money.Cents(9000), "withdrawable": money.Cents(4050)})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `{"available":90.00,"withdrawable":40.50}`+"\n", w.Body.String())
}

func TestRender_JSONWithStatus(t *testing.T) {
	w := httptest.NewRecorder()

	JSONWithStatus(w, map[string]string{"status": "pending"}, http.StatusCreated)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status": "pending"}`, w.Body.String())
}

func TestRender_ServiceError(t *testing.T) {
	w := httptest.NewRecorder()

	ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)

	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
			"error": "service_error",
			"message": "Insufficient funds"
		}`,
		w.Body.String(),
	)
}

func TestRender_DecodeError(t *testing.T) {
	tests := []struct {
		name        string
		requestBody string
		expected    string
	}{
		{
			name:        "json parsing error",
			requestBody: `invalid-json`,
			expected: `{
				"error":"decoding_failed",
				"message": "Failed to parse JSON: invalid character 'i' looking for beginning of value"
			}`,
		},
		{
			name:        "invalid type",
			requestBody: `{"code": 12345}`,
			expected: `{
				"error": "decoding_failed",
				"message": "Invalid data type for field 'code'"
			}`,
		},
		{
			name:        "amount with fractions of cent",
			requestBody: `{"amount": 10.005}`,
			expected: `{
				"error": "decoding_failed",
				"message": "Failed to parse JSON: amount 10.005 has more than two fractional digits"
			}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var value struct {
				Code   string      `json:"code"`
				Amount money.Cents `json:"amount"`
			}
			err := json.NewDecoder(strings.NewReader(tc.requestBody)).Decode(&value)
			require.Error(t, err, "Please check what JSON was sent. Test expected that it is invalid")

			w := httptest.NewRecorder()
			DecodeError(w, err)

			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tc.expected, w.Body.String())
		})
	}
}

func TestRender_ValidationErrors(t *testing.T) {
	validate := validator.New()

	type T struct {
		Username  string      `validate:"required"`
		Password  string      `validate:"min=8"`
		State     string      `validate:"hexadecimal"`
		Notes     string      `validate:"max=3"`
		Amount    money.Cents `validate:"gt=0"`
		AccountID string      `validate:"omitempty"`
	}

	err := validate.Struct(T{
		Password: "123",
		State:    "not-hex",
		Notes:    "too long",
	})
	require.Error(t, err, "test expects that data not pass validation")
	errs, ok := err.(validator.ValidationErrors)
	require.True(t, ok, "be sure you pass structure to validator")

	w := httptest.NewRecorder()
	ValidationErrors(w, errs)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"error": "validation_failed",
		"message": "Request validation failed",
		"fields": {
			"Username": "This field is required",
			"Password": "Value is too short (minimum 8)",
			"State": "Invalid value",
			"Notes": "Value is too long (maximum 3)",
			"Amount": "Value must be greater than 0"
		}
	}`, w.Body.String())
}

func TestRender_BindAndValidate(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "valid request",
			requestBody:    `{"amount": 25.50}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"amount": 25.50}`,
		},
		{
			name:           "amount as string",
			requestBody:    `{"amount": "10"}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"amount": 10.00}`,
		},
		{
			name:           "invalid json",
			requestBody:    `invalid-json`,
			expectedStatus: http.StatusBadRequest,
			expectedBody: `{
				"error": "decoding_failed",
				"message": "Failed to parse JSON: invalid character 'i' looking for beginning of value"
			}`,
		},
		{
			name:           "validation failed uses json names",
			requestBody:    `{"amount": 0}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody: `{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {
					"amount": "Value must be greater than 0"
				}
			}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/withdrawals", strings.NewReader(tc.requestBody))
			w := httptest.NewRecorder()

			req, err := BindAndValidate[withdrawalRequest](w, r)
			if err == nil {
				JSON(w, req)
			}

			require.Equal(t, tc.expectedStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tc.expectedBody, w.Body.String())
		})
	}
}
