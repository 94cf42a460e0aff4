package utils

import "testing"

func TestMatchRoute(t *testing.T) {
	cases := []struct {
		route, pattern string
		want           bool
	}{
		{"GET /orders", "GET /orders", true},
		{"get /orders", "GET /orders", true},
		{"POST /orders", "GET /orders", false},
		{"DELETE /orders/1", "* /orders/:id", true},
		{"GET /orders/1", "GET /orders/:id", true},
		{"GET /orders", "GET /orders/:id", false},
		{"GET /orders/1/items", "GET /orders/:id", false},
		{"GET /orders", "GET /orders/*", true},
		{"GET /orders/1/items/2", "GET /orders/*", true},
		{"GET /orders/1/items", "GET /orders/*/items", true},
		{"GET /orders/1/2/items", "GET /orders/*/items", false},
		{"GET /menus/1", "GET /orders/*", false},
		{"/orders/1", "/orders/:id", true},
		{"GET /orders/1", "/orders/:id", false},
		{"GET /", "GET /*", true},
	}
	for _, tc := range cases {
		if got := MatchRoute(tc.route, tc.pattern); got != tc.want {
			t.Errorf("MatchRoute(%q, %q) = %v, want %v", tc.route, tc.pattern, got, tc.want)
		}
	}
}

func TestRouteParams(t *testing.T) {
	params, ok := RouteParams("PUT /workspaces/ws-1/users/u-9", "PUT /workspaces/:ws/users/:user")
	if !ok {
		t.Fatalf("expected match")
	}
	if params["ws"] != "ws-1" || params["user"] != "u-9" {
		t.Fatalf("unexpected params %v", params)
	}
	if params, ok := RouteParams("GET /orders", "GET /orders"); !ok || params != nil {
		t.Fatalf("literal pattern should match without params, got %v %v", params, ok)
	}
}

func TestSpecificity(t *testing.T) {
	if Specificity("PUT /orders/:id/status") <= Specificity("PUT /orders/*") {
		t.Fatalf("literal tail should outrank wildcard")
	}
	if Specificity("GET /orders/list") <= Specificity("GET /orders/:id") {
		t.Fatalf("literal segment should outrank parameter")
	}
	if got := Specificity("* /"); got != 0 {
		t.Fatalf("root pattern should score 0, got %d", got)
	}
}
