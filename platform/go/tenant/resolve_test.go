package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolverKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		base string
		host string
		want string
	}{
		{name: "subdomain", host: "acme.example.com", want: "acme"},
		{name: "subdomain with port", host: "acme.example.com:8080", want: "acme"},
		{name: "uppercase host", host: "ACME.Example.COM", want: "acme"},
		{name: "bare domain", host: "example.com", want: DefaultKey},
		{name: "single label", host: "localhost", want: DefaultKey},
		{name: "single label with port", host: "localhost:3000", want: DefaultKey},
		{name: "localhost subdomain", host: "acme.localhost:3000", want: "acme"},
		{name: "ipv4", host: "127.0.0.1:3000", want: DefaultKey},
		{name: "ipv6", host: "[::1]:3000", want: DefaultKey},
		{name: "empty", host: "", want: DefaultKey},
		{name: "invalid label", host: "ac_me.example.com", want: DefaultKey},
		{name: "deep host takes leftmost", host: "a.b.example.com", want: "a"},
		{name: "base domain itself", base: "example.com", host: "example.com", want: DefaultKey},
		{name: "under base domain", base: "example.com", host: "beta.example.com", want: "beta"},
		{name: "nested under base domain", base: "example.com", host: "x.beta.example.com", want: "x"},
		{name: "outside base domain", base: "example.com", host: "acme.other.org", want: "acme"},
		{name: "base with leading dot", base: ".example.com", host: "beta.example.com", want: "beta"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := NewResolver(tc.base)
			require.Equal(t, tc.want, r.Key(tc.host))
		})
	}
}

func TestResolverResolveBuildsSchemaName(t *testing.T) {
	t.Parallel()

	r := NewResolver("")

	space := r.Resolve("gi-kace.example.com")
	require.Equal(t, "gi-kace", space.Key)
	require.Equal(t, "gi_kace", space.SchemaName)
	require.False(t, space.IsDefault())

	space = r.Resolve("example.com")
	require.Equal(t, Default(), space)
	require.True(t, space.IsDefault())

	// a label that cannot start a schema identifier falls back to public
	space = r.Resolve("9lives.example.com")
	require.Equal(t, Default(), space)
}

func TestValidateSchemaName(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSchemaName("acme"))
	require.NoError(t, ValidateSchemaName("gi_kace"))
	require.Error(t, ValidateSchemaName(""))
	require.Error(t, ValidateSchemaName("Acme"))
	require.Error(t, ValidateSchemaName("acme;drop"))
	require.Error(t, ValidateSchemaName("pg_catalog"))
	require.Error(t, ValidateSchemaName("information_schema"))
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, ok := FromContext(ctx)
	require.False(t, ok)
	require.Equal(t, Default(), FromContextOrDefault(ctx))

	space := SpaceForKey("acme")
	ctx = WithSpace(ctx, space)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, space, got)
}
