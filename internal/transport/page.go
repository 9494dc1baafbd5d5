package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"
)

// DefaultPageSize is the page size requested from cursor-paginated endpoints.
const DefaultPageSize = 100

// Page is one slice of a paginated listing. Cursor is the opaque continuation
// token for the next page; empty means the listing is exhausted.
type Page struct {
	Items  []json.RawMessage
	Cursor string
}

// listEnvelope matches the cursor-paginated list response shape.
type listEnvelope struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		Page struct {
			After string `json:"after"`
		} `json:"page"`
	} `json:"meta"`
}

// Pages returns a lazy sequence of pages from a cursor-paginated endpoint.
// Iteration stops when the server omits the continuation cursor, the consumer
// breaks, or a call fails; a failure is yielded once with an empty page.
func (c *Client) Pages(ctx context.Context, path string, params url.Values, pageSize int) iter.Seq2[Page, error] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func(Page, error) bool) {
		cursor := ""
		for {
			q := url.Values{}
			for k, vs := range params {
				q[k] = vs
			}
			q.Set("page[limit]", strconv.Itoa(pageSize))
			if cursor != "" {
				q.Set("page[cursor]", cursor)
			}

			var env listEnvelope
			if err := c.Get(ctx, path, q, &env); err != nil {
				yield(Page{}, err)
				return
			}

			page := Page{Items: env.Data, Cursor: env.Meta.Page.After}
			if !yield(page, nil) {
				return
			}
			if page.Cursor == "" || len(page.Items) == 0 {
				return
			}
			cursor = page.Cursor
		}
	}
}

// List fetches an un-paginated listing endpoint. The response may be a bare
// JSON array or an object wrapping the array under resultsKey.
func (c *Client) List(ctx context.Context, path string, params url.Values, resultsKey string) ([]json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, path, params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("GET %s: decode list: %w", path, err)
		}
		return items, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("GET %s: decode list envelope: %w", path, err)
	}
	inner, ok := wrapped[resultsKey]
	if !ok {
		return nil, fmt.Errorf("GET %s: response has no %q field", path, resultsKey)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(inner, &items); err != nil {
		return nil, fmt.Errorf("GET %s: decode %q list: %w", path, resultsKey, err)
	}
	return items, nil
}
