/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// SearchParams are equality filters keyed by column name. A slice value
// matches any of its elements.
type SearchParams map[string]interface{}

// OrderBy orders results by one column.
type OrderBy struct {
	Column    string        `json:"column"`
	Direction SortDirection `json:"direction"`
}

func Asc(column string) OrderBy { return OrderBy{Column: column, Direction: SortAsc} }

func Desc(column string) OrderBy { return OrderBy{Column: column, Direction: SortDesc} }

// PageRequest asks for one page of a limit/offset paginated query. Page
// starts at 1.
type PageRequest struct {
	Page         int          `json:"page"`
	ItemsPerPage int          `json:"items_per_page"`
	SearchParams SearchParams `json:"search_params,omitempty"`
	Filter       *QueryFilter `json:"-"`
	OrderBy      []OrderBy    `json:"order_by,omitempty"`
}

// NewPageRequest constructs a PageRequest without filters or ordering.
func NewPageRequest(page int, itemsPerPage int) PageRequest {
	return PageRequest{Page: page, ItemsPerPage: itemsPerPage}
}

// GetPage returns the requested page, at least 1.
func (p PageRequest) GetPage() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// PageInfo describes where a page sits in the whole result set.
type PageInfo struct {
	Page            int  `json:"page"`
	ItemsPerPage    int  `json:"items_per_page"`
	TotalPages      int  `json:"total_pages"`
	TotalItems      int  `json:"total_items"`
	HasNextPage     bool `json:"has_next_page"`
	HasPreviousPage bool `json:"has_previous_page"`
}

// NewPageInfo computes page metadata. The reported page is 0 when the page
// holds no items, otherwise the requested page capped at the last page.
func NewPageInfo(page, itemsPerPage, totalItems, itemsInPage int) PageInfo {
	totalPages := 0
	if totalItems > 0 && itemsPerPage > 0 {
		totalPages = (totalItems + itemsPerPage - 1) / itemsPerPage
	}
	reported := 0
	if itemsInPage > 0 {
		reported = min(page, totalPages)
	}
	return PageInfo{
		Page:            reported,
		ItemsPerPage:    itemsPerPage,
		TotalPages:      totalPages,
		TotalItems:      totalItems,
		HasNextPage:     reported > 0 && reported < totalPages,
		HasPreviousPage: reported > 1,
	}
}

// PaginatedResult holds one page of items and its metadata.
type PaginatedResult[T any] struct {
	Items    []*T     `json:"items"`
	PageInfo PageInfo `json:"page_info"`
}

// CursorReference points at a row by the value of one column.
type CursorReference struct {
	Column string      `json:"column" msgpack:"c"`
	Value  interface{} `json:"value" msgpack:"v"`
}

// CursorPageRequest asks for the rows after the cursor, or before it when
// Before is set. Without a cursor the first page ordered by primary key is
// returned.
type CursorPageRequest struct {
	ItemsPerPage int              `json:"items_per_page"`
	Cursor       *CursorReference `json:"cursor,omitempty"`
	Before       bool             `json:"before,omitempty"`
	SearchParams SearchParams     `json:"search_params,omitempty"`
	Filter       *QueryFilter     `json:"-"`
}

// CursorPageInfo describes a cursor page. StartCursor and EndCursor are nil
// for an empty page.
type CursorPageInfo struct {
	ItemsPerPage    int              `json:"items_per_page"`
	TotalItems      int              `json:"total_items"`
	HasNextPage     bool             `json:"has_next_page"`
	HasPreviousPage bool             `json:"has_previous_page"`
	StartCursor     *CursorReference `json:"start_cursor,omitempty"`
	EndCursor       *CursorReference `json:"end_cursor,omitempty"`
}

type CursorPaginatedResult[T any] struct {
	Items    []*T           `json:"items"`
	PageInfo CursorPageInfo `json:"page_info"`
}
