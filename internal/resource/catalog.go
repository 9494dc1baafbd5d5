package resource

import (
	"github.com/orgsync-io/orgsync/internal/transport"
)

// Builtin returns the declarations for the resource types shipped with the
// tool, in the order they should break scheduling ties.
func Builtin() []Type {
	return []Type{
		{
			Name:         "roles",
			BaseEndpoint: "/api/v2/roles",
			ResultsKey:   "data",
			RequestKey:   "data",
			Concurrent:   true,
			ExcludedAttributes: []string{
				"attributes.created_at",
				"attributes.modified_at",
				"attributes.user_count",
			},
		},
		{
			Name:         "users",
			BaseEndpoint: "/api/v2/users",
			Paginated:    true,
			Concurrent:   true,
			Connections: map[string][]string{
				"relationships.roles.data.*.id": {"roles"},
			},
			ExcludedAttributes: []string{
				"attributes.created_at",
				"attributes.modified_at",
				"attributes.status",
				"attributes.icon",
				"relationships.org",
			},
		},
		{
			Name:         "dashboards",
			BaseEndpoint: "/api/v1/dashboard",
			ResultsKey:   "dashboards",
			Concurrent:   true,
			ExcludedAttributes: []string{
				"author_handle",
				"author_name",
				"created_at",
				"modified_at",
				"url",
			},
		},
		{
			Name:         "monitors",
			BaseEndpoint: "/api/v1/monitor",
			Concurrent:   true,
			Connections: map[string][]string{
				"dashboard_id":       {"dashboards"},
				"restricted_roles.*": {"roles"},
				// Composite monitors reference sibling monitors by ID.
				"query_monitor_ids.*": {"monitors"},
			},
			ExcludedAttributes: []string{
				"creator",
				"created",
				"modified",
				"deleted",
				"matching_downtimes",
				"overall_state",
				"overall_state_modified",
			},
		},
		{
			Name:         "downtimes",
			BaseEndpoint: "/api/v1/downtime",
			Connections: map[string][]string{
				"monitor_id": {"monitors"},
			},
			ExcludedAttributes: []string{
				"creator_id",
				"updater_id",
				"created",
				"modified",
				"active",
				"canceled",
			},
		},
		{
			Name:         "webhooks",
			BaseEndpoint: "/api/v1/integration/webhooks/configuration/webhooks",
			ResultsKey:   "webhooks",
			// Webhooks carry no server-assigned identifier; the name is the
			// client-chosen key on both sides.
			IDAttribute: "name",
			MatchOn:     []string{"name"},
		},
		{
			Name:         "notebooks",
			BaseEndpoint: "/api/v1/notebooks",
			ResultsKey:   "data",
			RequestKey:   "data",
			Paginated:    false,
			ExcludedAttributes: []string{
				"attributes.created",
				"attributes.modified",
				"attributes.author",
			},
		},
	}
}

// NewCatalog registers the generic HTTP adapter for every built-in type over
// the given account clients.
func NewCatalog(source, dest *transport.Client) (*Registry, error) {
	reg := NewRegistry()
	for _, typ := range Builtin() {
		if err := reg.Register(NewHTTPAdapter(typ, source, dest)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
