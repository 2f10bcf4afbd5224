package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestSandboxErrorStatus(t *testing.T) {
	tests := []struct {
		errType ErrorType
		code    int
	}{
		{ErrorTypeMissingQuery, http.StatusBadRequest},
		{ErrorTypeMultipleStatements, http.StatusBadRequest},
		{ErrorTypeNotASelect, http.StatusBadRequest},
		{ErrorTypeTooLarge, http.StatusRequestEntityTooLarge},
		{ErrorTypeTimeout, http.StatusRequestTimeout},
		{ErrorTypeExecution, http.StatusBadRequest},
		{ErrorTypeStorage, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			err := NewSandboxError(tt.errType, "rejected", nil)
			if err.Code != tt.code {
				t.Errorf("code = %d, want %d", err.Code, tt.code)
			}
			if err.Type != tt.errType {
				t.Errorf("type = %q, want %q", err.Type, tt.errType)
			}
		})
	}
}

func TestInternalCauseNotSerialized(t *testing.T) {
	cause := stderrors.New("no such column: secret_column")
	apiErr := NewSandboxError(ErrorTypeExecution, "query failed", cause)

	data, err := json.Marshal(apiErr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "secret_column") {
		t.Errorf("serialized error leaks cause: %s", data)
	}
	if !stderrors.Is(apiErr, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestTypeOfWrapped(t *testing.T) {
	base := NewStorageError("insert failed", nil)
	wrapped := fmt.Errorf("ingest: %w", base)

	if got := TypeOf(wrapped); got != ErrorTypeStorage {
		t.Errorf("TypeOf = %q, want %q", got, ErrorTypeStorage)
	}
	if TypeOf(stderrors.New("plain")) != ErrorTypeInternal {
		t.Error("plain errors should map to internal")
	}
	if IsType(nil, ErrorTypeInternal) {
		t.Error("nil error should match no type")
	}
	if !IsNotFound(NewNotFoundError("no data yet", nil)) {
		t.Error("IsNotFound should match not found errors")
	}
}

func TestAsAPIError(t *testing.T) {
	apiErr := AsAPIError(stderrors.New("boom"))
	if apiErr.Type != ErrorTypeInternal || apiErr.Code != http.StatusInternalServerError {
		t.Errorf("unexpected conversion: %+v", apiErr)
	}

	original := NewInvalidRangeError("to must be after from", nil)
	if AsAPIError(original) != original {
		t.Error("AsAPIError should return APIErrors unchanged")
	}
}
