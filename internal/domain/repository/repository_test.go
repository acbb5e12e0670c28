package repository

import "testing"

func TestNewPaginationClamps(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, DefaultPageSize},
		{3, 500, 3, MaxPageSize},
		{2, 10, 2, 10},
	}
	for _, tt := range tests {
		p := NewPagination(tt.page, tt.size)
		if p.Page != tt.wantPage || p.PageSize != tt.wantSize {
			t.Errorf("NewPagination(%d, %d) = %+v", tt.page, tt.size, p)
		}
	}
	if off := NewPagination(3, 10).Offset(); off != 20 {
		t.Fatalf("offset = %d", off)
	}
}

func TestPagedResultPages(t *testing.T) {
	r := NewPagedResult([]int{1, 2}, 21, NewPagination(2, 10))
	if r.TotalPages != 3 || !r.HasMore() {
		t.Fatalf("result = %+v", r)
	}
	last := NewPagedResult([]int{1}, 21, NewPagination(3, 10))
	if last.HasMore() {
		t.Fatal("last page must not report more")
	}
	empty := NewPagedResult[int](nil, 0, NewPagination(1, 10))
	if empty.TotalPages != 0 || empty.HasMore() {
		t.Fatalf("empty = %+v", empty)
	}
}
