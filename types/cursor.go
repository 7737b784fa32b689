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

import (
	"bytes"
	"encoding/base64"
	"math"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidCursor is returned when a cursor token cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")

type cursorToken struct {
	Column string      `msgpack:"c"`
	Value  interface{} `msgpack:"v"`
	Before bool        `msgpack:"b,omitempty"`
}

// EncodeCursor packs a cursor and its direction into an opaque URL safe
// token.
func EncodeCursor(ref CursorReference, before bool) (string, error) {
	if ref.Column == "" {
		return "", errors.Wrap(ErrInvalidCursor, "empty column")
	}
	raw, err := msgpack.Marshal(&cursorToken{Column: ref.Column, Value: ref.Value, Before: before})
	if err != nil {
		return "", errors.Wrap(ErrInvalidCursor, err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor reverses EncodeCursor. Integer values come back as int64 and
// floating point values as float64.
func DecodeCursor(token string) (*CursorReference, bool, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, false, errors.Wrap(ErrInvalidCursor, err.Error())
	}
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)

	var tok cursorToken
	if err := dec.Decode(&tok); err != nil {
		return nil, false, errors.Wrap(ErrInvalidCursor, err.Error())
	}
	if tok.Column == "" {
		return nil, false, errors.Wrap(ErrInvalidCursor, "empty column")
	}
	return &CursorReference{Column: tok.Column, Value: normalizeCursorValue(tok.Value)}, tok.Before, nil
}

// NextPageRequest returns the request for the page after info.
func (info CursorPageInfo) NextPageRequest(itemsPerPage int) CursorPageRequest {
	return CursorPageRequest{ItemsPerPage: itemsPerPage, Cursor: info.EndCursor}
}

// PreviousPageRequest returns the request for the page before info.
func (info CursorPageInfo) PreviousPageRequest(itemsPerPage int) CursorPageRequest {
	return CursorPageRequest{ItemsPerPage: itemsPerPage, Cursor: info.StartCursor, Before: true}
}

func normalizeCursorValue(v interface{}) interface{} {
	switch n := v.(type) {
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
	case float32:
		return float64(n)
	}
	return v
}
