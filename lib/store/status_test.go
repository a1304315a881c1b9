package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewResult(t *testing.T) {
	tests := []struct {
		name   string
		status StatusCode
		format string
		args   []any
		want   Result
	}{
		{"ok drops message", StatusOK, "ignored", nil, Result{Status: StatusOK}},
		{"formatted", StatusLookupError, "Path not found: %s", []any{"a"}, Result{Status: StatusLookupError, Error: "Path not found: a"}},
		{"empty message gets status name", StatusUnknownError, "", nil, Result{Status: StatusUnknownError, Error: "UNKNOWN_ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewResult(tt.status, tt.format, tt.args...); got != tt.want {
				t.Errorf("NewResult() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStatusFromWire(t *testing.T) {
	if got := StatusFromWire(uint8(StatusTimeout), TimeoutMessage); got != TimeoutResult() {
		t.Errorf("StatusFromWire(TIMEOUT) = %+v, want %+v", got, TimeoutResult())
	}

	got := StatusFromWire(200, "boom")
	if got.Status != StatusInvalidArgument {
		t.Errorf("StatusFromWire(200).Status = %v, want INVALID_ARGUMENT", got.Status)
	}
	if !strings.Contains(got.Error, "(200)") || !strings.Contains(got.Error, "boom") {
		t.Errorf("StatusFromWire(200).Error = %q, want code and original message", got.Error)
	}
}

func TestStatusCodeString(t *testing.T) {
	if got := StatusSessionExpired.String(); got != "SESSION_EXPIRED" {
		t.Errorf("String() = %v, want SESSION_EXPIRED", got)
	}
	if got := StatusCode(9).String(); got != "UNKNOWN(9)" {
		t.Errorf("String() = %v, want UNKNOWN(9)", got)
	}
}

func TestStatusCodeJSON(t *testing.T) {
	data, _ := json.Marshal(Result{Status: StatusLookupError, Error: "x"})
	if want := `{"status":2,"error":"x"}`; string(data) != want {
		t.Errorf("json.Marshal() = %s, want %s", data, want)
	}

	for _, input := range []string{`2`, `"LOOKUP_ERROR"`} {
		var s StatusCode
		if err := json.Unmarshal([]byte(input), &s); err != nil || s != StatusLookupError {
			t.Errorf("json.Unmarshal(%s) = %v, %v, want LOOKUP_ERROR", input, s, err)
		}
	}
	var s StatusCode
	if err := json.Unmarshal([]byte(`"NOPE"`), &s); err == nil {
		t.Errorf("json.Unmarshal of unknown name should fail")
	}
}

func TestErrors(t *testing.T) {
	res := NewResult(StatusTimeout, TimeoutMessage)
	err := res.Err()
	if !errors.Is(err, &Error{Code: StatusTimeout}) {
		t.Errorf("errors.Is(%v, TIMEOUT) = false, want true", err)
	}
	if errors.Is(err, &Error{Code: StatusLookupError}) {
		t.Errorf("errors.Is(%v, LOOKUP_ERROR) = true, want false", err)
	}
	if OK().Err() != nil {
		t.Errorf("OK().Err() = %v, want nil", OK().Err())
	}

	if got := ResultOf(fmt.Errorf("plain")); got.Status != StatusUnknownError {
		t.Errorf("ResultOf(plain) = %v, want UNKNOWN_ERROR", got.Status)
	}
	if got := ResultOf(NewError(StatusConditionNotMet, "c")); got != NewResult(StatusConditionNotMet, "c") {
		t.Errorf("ResultOf(*Error) = %+v", got)
	}
}
