package pagination

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LovationAdmin/finance-api/apperr"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		page         string
		pageSize     string
		wantPage     int
		wantPageSize int
		wantErr      bool
	}{
		{name: "defaults when absent", wantPage: 1, wantPageSize: 20},
		{name: "explicit values", page: "3", pageSize: "10", wantPage: 3, wantPageSize: 10},
		{name: "surrounding spaces", page: " 2 ", pageSize: " 5", wantPage: 2, wantPageSize: 5},
		{name: "page size clamped", page: "1", pageSize: "500", wantPage: 1, wantPageSize: MaxPageSize},
		{name: "very large page", page: "461168601842738792", pageSize: "20", wantPage: 461168601842738792, wantPageSize: 20},
		{name: "page beyond int range", page: "99999999999999999999", wantErr: true},
		{name: "page zero", page: "0", wantErr: true},
		{name: "negative page", page: "-1", wantErr: true},
		{name: "non numeric page", page: "abc", wantErr: true},
		{name: "fractional page", page: "1.5", wantErr: true},
		{name: "zero page size", page: "1", pageSize: "0", wantErr: true},
		{name: "non numeric page size", pageSize: "ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.page, tt.pageSize)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsValidation(err))
				assert.Contains(t, err.Error(), "invalid page")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantPageSize, got.PageSize)
		})
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		page  int
		size  int
		total int
		want  Meta
	}{
		{
			name: "middle page", page: 2, size: 1, total: 3,
			want: Meta{Page: 2, PageSize: 1, TotalCount: 3, TotalPages: 3, HasNextPage: true, HasPreviousPage: true},
		},
		{
			name: "last page", page: 3, size: 1, total: 3,
			want: Meta{Page: 3, PageSize: 1, TotalCount: 3, TotalPages: 3, HasNextPage: false, HasPreviousPage: true},
		},
		{
			name: "first page", page: 1, size: 2, total: 3,
			want: Meta{Page: 1, PageSize: 2, TotalCount: 3, TotalPages: 2, HasNextPage: true, HasPreviousPage: false},
		},
		{
			name: "empty listing has one page", page: 1, size: 20, total: 0,
			want: Meta{Page: 1, PageSize: 20, TotalCount: 0, TotalPages: 1},
		},
		{
			name: "exact multiple", page: 2, size: 5, total: 10,
			want: Meta{Page: 2, PageSize: 5, TotalCount: 10, TotalPages: 2, HasPreviousPage: true},
		},
		{
			name: "page beyond the end", page: 7, size: 5, total: 10,
			want: Meta{Page: 7, PageSize: 5, TotalCount: 10, TotalPages: 2, HasPreviousPage: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Paginate(Params{Page: tt.page, PageSize: tt.size}, tt.total))
		})
	}
}

func TestSkip(t *testing.T) {
	assert.Equal(t, 0, Params{Page: 1, PageSize: 20}.Skip())
	assert.Equal(t, 40, Params{Page: 3, PageSize: 20}.Skip())
	assert.Equal(t, math.MaxInt, Params{Page: 461168601842738792, PageSize: 20}.Skip())
	assert.Equal(t, math.MaxInt, Params{Page: math.MaxInt, PageSize: MaxPageSize}.Skip())
}

func TestNew_EncodesFlatEnvelope(t *testing.T) {
	page := New[string](nil, Params{Page: 1, PageSize: 10}, 0)

	raw, err := json.Marshal(page)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, []any{}, decoded["data"])
	assert.EqualValues(t, 1, decoded["page"])
	assert.EqualValues(t, 10, decoded["pageSize"])
	assert.EqualValues(t, 1, decoded["totalPages"])
	assert.Equal(t, false, decoded["hasNextPage"])
}
