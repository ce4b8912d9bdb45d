package blame_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fastblame/pkg/blame"
)

func TestRequest_Args(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  blame.Request
		want []string
	}{
		{
			name: "ranged",
			req:  blame.Request{Path: "src/main.go", Commit: "abc123", StartLine: 10, NumLines: 5},
			want: []string{"blame", "--porcelain", "-L", "10,+5", "abc123", "--", "src/main.go"},
		},
		{
			name: "whole file defaults to HEAD",
			req:  blame.Request{Path: "README.md"},
			want: []string{"blame", "--porcelain", "HEAD", "--", "README.md"},
		},
		{
			name: "path that looks like an option",
			req:  blame.Request{Path: "-weird", Commit: "main", StartLine: 1, NumLines: 1},
			want: []string{"blame", "--porcelain", "-L", "1,+1", "main", "--", "-weird"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.req.Args())
		})
	}
}

func TestRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     blame.Request
		wantErr bool
	}{
		{"ranged", blame.Request{Path: "a.go", StartLine: 1, NumLines: 3}, false},
		{"whole file", blame.Request{Path: "a.go"}, false},
		{"missing path", blame.Request{StartLine: 1, NumLines: 1}, true},
		{"blank path", blame.Request{Path: "  "}, true},
		{"zero start", blame.Request{Path: "a.go", NumLines: 2}, true},
		{"zero count", blame.Request{Path: "a.go", StartLine: 4}, true},
		{"negative count", blame.Request{Path: "a.go", StartLine: 1, NumLines: -1}, true},
		{"option commit", blame.Request{Path: "a.go", Commit: "--output=x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.req.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, blame.ErrInvalidRequest)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestRequest_RangeAndRevision(t *testing.T) {
	t.Parallel()

	req := blame.Request{Path: "a.go", Commit: "v1.0", StartLine: 3, NumLines: 4}

	assert.Equal(t, blame.Range{Start: 3, Count: 4}, req.Range())
	assert.Equal(t, "v1.0", req.Revision())
	assert.Equal(t, "3,+4", req.Range().String())
	assert.Equal(t, "all", blame.Request{Path: "a.go"}.Range().String())
	assert.Equal(t, blame.DefaultCommit, blame.Request{Path: "a.go"}.Revision())
}

func TestParseLineRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr    string
		want    blame.Range
		wantErr bool
	}{
		{"10,+5", blame.Range{Start: 10, Count: 5}, false},
		{"10,14", blame.Range{Start: 10, Count: 5}, false},
		{"7,7", blame.Range{Start: 7, Count: 1}, false},
		{" 2 , +3 ", blame.Range{Start: 2, Count: 3}, false},
		{"10", blame.Range{}, true},
		{"0,+1", blame.Range{}, true},
		{"5,+0", blame.Range{}, true},
		{"5,4", blame.Range{}, true},
		{"a,+1", blame.Range{}, true},
		{"1,b", blame.Range{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()

			got, err := blame.ParseLineRange(tt.expr)
			if tt.wantErr {
				require.ErrorIs(t, err, blame.ErrInvalidRequest)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
