package tenant

import (
	"context"
	"testing"
)

func TestResolvePrecedence(t *testing.T) {
	cases := []struct {
		name string
		in   Signals
		want string
		ok   bool
	}{
		{
			name: "claim wins over conflicting header",
			in:   Signals{Claim: "t-claim", Header: "t-header"},
			want: "t-claim", ok: true,
		},
		{
			name: "header wins when claim absent",
			in:   Signals{Header: "t-header", Host: "acme.gatepass.dev", Query: "t-query"},
			want: "t-header", ok: true,
		},
		{
			name: "malformed header falls through to subdomain",
			in:   Signals{Header: "not a tenant!", Host: "acme.gatepass.dev"},
			want: "acme", ok: true,
		},
		{
			name: "subdomain from host with port",
			in:   Signals{Host: "acme.gatepass.dev:8080"},
			want: "acme", ok: true,
		},
		{
			name: "localhost skips subdomain, query wins",
			in:   Signals{Host: "localhost:8080", Query: "t-query"},
			want: "t-query", ok: true,
		},
		{
			name: "literal IPv4 host skips subdomain",
			in:   Signals{Host: "127.0.0.1:8080"},
			want: "", ok: false,
		},
		{
			name: "literal IPv6 host skips subdomain",
			in:   Signals{Host: "[::1]:8080"},
			want: "", ok: false,
		},
		{
			name: "bare apex domain has no subdomain",
			in:   Signals{Host: "gatepass.dev"},
			want: "", ok: false,
		},
		{
			name: "www is not a tenant slug",
			in:   Signals{Host: "www.gatepass.dev"},
			want: "", ok: false,
		},
		{
			name: "no signals at all",
			in:   Signals{},
			want: "", ok: false,
		},
		{
			name: "whitespace claim counts as absent",
			in:   Signals{Claim: "   ", Header: "t-header"},
			want: "t-header", ok: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Resolve(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("Resolve(%+v) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestResolveNeverConsultsWeakerSignals(t *testing.T) {
	// A parseable claim must mask even a parseable header with a different id.
	got, ok := Resolve(Signals{Claim: "alpha", Header: "beta", Host: "gamma.gatepass.dev", Query: "delta"})
	if !ok || got != "alpha" {
		t.Fatalf("expected claim to win, got (%q, %v)", got, ok)
	}
}

func TestExemptTargets(t *testing.T) {
	exempt := NewExemptTargets("/healthz", "/metrics")
	if !exempt.Contains("/healthz") {
		t.Fatal("expected /healthz to be exempt")
	}
	if exempt.Contains("/v1/checkins") {
		t.Fatal("check-in submission must not be tenant-exempt")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := IDFromContext(ctx); ok {
		t.Fatal("empty context should carry no tenant")
	}
	ctx = ContextWithID(ctx, "t1")
	id, ok := IDFromContext(ctx)
	if !ok || id != "t1" {
		t.Fatalf("got (%q, %v), want (t1, true)", id, ok)
	}
	if got := ContextWithID(context.Background(), ""); got != context.Background() {
		t.Fatal("empty id must not be stamped")
	}
}
