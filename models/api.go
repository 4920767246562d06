// ABOUTME: Request and pagination envelopes exchanged with the upstream access layer
// ABOUTME: Params with nil values are dropped; slice values become repeated query keys

package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
)

// APIRequest describes one logical upstream call
type APIRequest struct {
	Method   string
	Endpoint string
	Params   map[string]any
	Body     any
	Force    bool
}

// Query encodes Params into a query string, omitting absent values
func (r APIRequest) Query() url.Values {
	values := url.Values{}
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := r.Params[k]
		if isAbsent(v) {
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				values.Add(k, formatParam(rv.Index(i).Interface()))
			}
			continue
		}
		values.Set(k, formatParam(v))
	}
	return values
}

// PresentParams returns a copy of params without absent values. A nil map yields an empty map.
func PresentParams(params map[string]any) map[string]any {
	present := make(map[string]any, len(params))
	for k, v := range params {
		if isAbsent(v) {
			continue
		}
		present[k] = v
	}
	return present
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map:
		return rv.IsNil()
	case reflect.Slice:
		return rv.IsNil() || rv.Len() == 0
	case reflect.String:
		return rv.Len() == 0
	}
	return false
}

func formatParam(v any) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		v = rv.Elem().Interface()
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// PaginationResponse is the paging envelope carried by every listing response
type PaginationResponse struct {
	RequestedLimit  int `json:"RequestedLimit"`
	RequestedOffset int `json:"RequestedOffset"`
	PageSize        int `json:"PageSize"`
	TotalResults    int `json:"TotalResults"`
}

// ListPage is a decoded listing page: the paging envelope plus raw records
type ListPage struct {
	Pagination PaginationResponse
	Records    []json.RawMessage
}

// DecodeListPage extracts the pagination envelope and the records array stored under field
func DecodeListPage(body json.RawMessage, field string) (*ListPage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode listing response: %w", err)
	}

	page := &ListPage{}
	if raw, ok := envelope["PaginationResponse"]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &page.Pagination); err != nil {
			return nil, fmt.Errorf("failed to decode pagination: %w", err)
		}
	}
	if raw, ok := envelope[field]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &page.Records); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", field, err)
		}
	}
	return page, nil
}
