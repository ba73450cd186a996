package processor

import (
	"testing"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageSpec(t *testing.T) {
	tests := []struct {
		name      string
		spec      string
		pageCount int
		want      []int
		wantKind  docerrors.Kind
	}{
		{name: "single page", spec: "3", pageCount: 10, want: []int{3}},
		{name: "list", spec: "1,3,5", pageCount: 10, want: []int{1, 3, 5}},
		{name: "range", spec: "2-4", pageCount: 10, want: []int{2, 3, 4}},
		{name: "mixed with whitespace", spec: " 1 , 3-5 , 7 ", pageCount: 10, want: []int{1, 3, 4, 5, 7}},
		{name: "dedupes overlap", spec: "1-3,2-4", pageCount: 10, want: []int{1, 2, 3, 4}},
		{name: "empty spec", spec: "", pageCount: 10, wantKind: docerrors.InvalidPageSpec},
		{name: "empty part", spec: "1,,3", pageCount: 10, wantKind: docerrors.InvalidPageSpec},
		{name: "non-positive", spec: "0", pageCount: 10, wantKind: docerrors.InvalidPageSpec},
		{name: "reversed range", spec: "5-3", pageCount: 10, wantKind: docerrors.InvalidPageSpec},
		{name: "non-numeric", spec: "a-b", pageCount: 10, wantKind: docerrors.InvalidPageSpec},
		{name: "out of range", spec: "1,99", pageCount: 10, wantKind: docerrors.PageOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePageSpec(tt.spec, tt.pageCount)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, docerrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePageSpecNoBoundsCheckWhenPageCountZero(t *testing.T) {
	got, err := ParsePageSpec("1,500", 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 500}, got)
}
