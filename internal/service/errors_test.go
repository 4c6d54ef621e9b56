package service

import (
	"errors"
	"fmt"
	"testing"

	"fileflow/internal/analyzer"
	"fileflow/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "validation", err: fmt.Errorf("%w: %w", ErrValidation, model.ErrOwnerRequired), want: KindValidation},
		{name: "malformed message", err: fmt.Errorf("%w: jobId missing", model.ErrMalformedMessage), want: KindValidation},
		{name: "transient", err: &TransientError{Op: "load job", Err: errors.New("conn reset")}, want: KindTransient},
		{name: "wrapped transient", err: fmt.Errorf("outer: %w", &TransientError{Op: "x", Err: errors.New("y")}), want: KindTransient},
		{name: "exhausted wins over transient", err: &RetryExhaustedError{Attempts: 3, Err: &TransientError{Op: "x", Err: errors.New("y")}}, want: KindExhausted},
		{name: "analysis", err: &analyzer.AnalysisError{Op: "open", Err: errors.New("no such file")}, want: KindAnalysis},
		{name: "duplicate", err: ErrDuplicateDelivery, want: KindDuplicate},
		{name: "not found", err: ErrNotFound, want: KindNotFound},
		{name: "other", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryExhaustedError_Message(t *testing.T) {
	err := &RetryExhaustedError{Attempts: 3, Err: &TransientError{Op: "record result", Err: errors.New("db down")}}

	assert.Equal(t, "retry attempts exhausted after 3 attempts: record result: db down", err.Error())
	assert.Equal(t, "retry attempts exhausted after 3 attempts", err.Reason())
	assert.NotContains(t, err.Reason(), "db down")
}
