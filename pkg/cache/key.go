package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached API response. Tenant domain is part of the key so
// two tenants never see each other's responses.
type Key struct {
	// Domain is the tenant subdomain (e.g. "acme").
	Domain string

	// Endpoint is the resource path (e.g. "v1/patients").
	Endpoint string

	// Query are the request query parameters.
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: niko:domain:endpoint:query1=val1:query2=val2
//
// Example:
//
//	niko:acme:v1/patients:pageIndex=2:pageSize=100
func (k Key) String() string {
	parts := []string{"niko"}

	if k.Domain != "" {
		parts = append(parts, k.Domain)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Query) > 0 {
		queryKeys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Query.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
