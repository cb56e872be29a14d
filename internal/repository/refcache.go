package repository

import (
	"fmt"

	"github.com/maypok86/otter"

	"github.com/Miguel-Alzate/modr/internal/model"
)

const defaultReferenceCacheSize = 1024

// ReferenceCache keeps reference rows (methods, status codes, header names)
// that are known to be committed. A nil *ReferenceCache is a valid, always
// missing cache.
type ReferenceCache struct {
	methods  otter.Cache[string, model.Method]
	statuses otter.Cache[int, model.Status]
	headers  otter.Cache[string, model.Header]
}

func NewReferenceCache(size int) (*ReferenceCache, error) {
	if size <= 0 {
		size = defaultReferenceCacheSize
	}
	methods, err := otter.MustBuilder[string, model.Method](size).Build()
	if err != nil {
		return nil, fmt.Errorf("method cache: %w", err)
	}
	statuses, err := otter.MustBuilder[int, model.Status](size).Build()
	if err != nil {
		return nil, fmt.Errorf("status cache: %w", err)
	}
	headers, err := otter.MustBuilder[string, model.Header](size).Build()
	if err != nil {
		return nil, fmt.Errorf("header cache: %w", err)
	}
	return &ReferenceCache{methods: methods, statuses: statuses, headers: headers}, nil
}

func (c *ReferenceCache) Method(name string) (model.Method, bool) {
	if c == nil {
		return model.Method{}, false
	}
	return c.methods.Get(name)
}

func (c *ReferenceCache) Status(code int) (model.Status, bool) {
	if c == nil {
		return model.Status{}, false
	}
	return c.statuses.Get(code)
}

func (c *ReferenceCache) Header(name string) (model.Header, bool) {
	if c == nil {
		return model.Header{}, false
	}
	return c.headers.Get(name)
}

// Clear drops every entry. Used after bulk deletes that may remove
// reference rows out from under the cache.
func (c *ReferenceCache) Clear() {
	if c == nil {
		return
	}
	c.methods.Clear()
	c.statuses.Clear()
	c.headers.Clear()
}

func (c *ReferenceCache) Close() {
	if c == nil {
		return
	}
	c.methods.Close()
	c.statuses.Close()
	c.headers.Close()
}

// learned collects rows resolved inside a transaction. They only reach the
// cache once the transaction has committed.
type learned struct {
	methods  []model.Method
	statuses []model.Status
	headers  []model.Header
}

func (c *ReferenceCache) remember(l *learned) {
	if c == nil || l == nil {
		return
	}
	for _, m := range l.methods {
		c.methods.Set(m.Name, m)
	}
	for _, s := range l.statuses {
		c.statuses.Set(s.Code, s)
	}
	for _, h := range l.headers {
		c.headers.Set(h.Name, h)
	}
}
