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

import "strings"

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// SortDirection is the order of an OrderBy. The zero value is ascending.
type SortDirection int

const (
	SortAsc SortDirection = iota
	SortDesc
)

var _ BaseEnum = SortAsc

// ParseSortDirection accepts "asc"/"ascending" and "desc"/"descending" in any
// case. Anything else yields an invalid direction.
func ParseSortDirection(s string) SortDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return SortAsc
	case "desc", "descending":
		return SortDesc
	default:
		return SortDirection(IllegalValue)
	}
}

func (d SortDirection) IsValid() bool { return d == SortAsc || d == SortDesc }

func (d SortDirection) Number() int {
	if !d.IsValid() {
		return IllegalValue
	}
	return int(d)
}

// String returns the SQL keyword.
func (d SortDirection) String() string {
	switch d {
	case SortAsc:
		return "ASC"
	case SortDesc:
		return "DESC"
	default:
		return IllegalName
	}
}

func (d SortDirection) Desc() string {
	switch d {
	case SortAsc:
		return "ascending"
	case SortDesc:
		return "descending"
	default:
		return IllegalDesc
	}
}

func (d SortDirection) Name() string {
	switch d {
	case SortAsc:
		return "asc"
	case SortDesc:
		return "desc"
	default:
		return IllegalName
	}
}
