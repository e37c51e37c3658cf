package graph

import (
	"reflect"
	"strings"
	"testing"
)

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder()
	b.Declare(Node{Name: "Order", Transform: "OrderResource", Entity: "Order"}, "Customer", "OrderItem", "Customer")
	b.Declare(Node{Name: "Customer", Transform: "CustomerResource"})
	b.Declare(Node{Name: "OrderItem", Transform: "OrderItemResource"}, "Order")

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if g.NodeCount() != 3 {
		t.Errorf("Expected 3 nodes, got %d", g.NodeCount())
	}
	if g.EdgeCount() != 3 {
		t.Errorf("Expected duplicate import to collapse into 3 edges, got %d", g.EdgeCount())
	}
	if !reflect.DeepEqual(g.GetImports("Order"), []string{"Customer", "OrderItem"}) {
		t.Errorf("Unexpected imports %v", g.GetImports("Order"))
	}
	if !reflect.DeepEqual(g.GetImportedBy("Order"), []string{"OrderItem"}) {
		t.Errorf("Unexpected importers %v", g.GetImportedBy("Order"))
	}
	if node := g.Nodes["Order"]; node == nil || node.Transform != "OrderResource" {
		t.Errorf("Unexpected node %+v", node)
	}
}

func TestBuilder_SelfReferenceIgnored(t *testing.T) {
	b := NewBuilder()
	b.Declare(Node{Name: "Category"}, "Category")

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if g.EdgeCount() != 0 {
		t.Errorf("Expected no edges, got %v", g.AllEdges())
	}
	if _, info := g.Order(); info != nil {
		t.Error("Self reference must not count as a cycle")
	}
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		declare func(b *Builder)
		wantErr string
	}{
		{
			name: "duplicate",
			declare: func(b *Builder) {
				b.Declare(Node{Name: "Order"})
				b.Declare(Node{Name: "Order"})
			},
			wantErr: "duplicate declaration",
		},
		{
			name: "empty name",
			declare: func(b *Builder) {
				b.Declare(Node{Transform: "X"})
			},
			wantErr: "no type name",
		},
		{
			name: "empty import",
			declare: func(b *Builder) {
				b.Declare(Node{Name: "Order"}, "")
			},
			wantErr: "empty type name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.declare(b)
			_, err := b.Build()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGraph_Dangling(t *testing.T) {
	b := NewBuilder()
	b.Declare(Node{Name: "Order"}, "Customer", "Ghost")
	b.Declare(Node{Name: "Customer"})

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	dangling := g.Dangling()
	if !reflect.DeepEqual(dangling, []Edge{{From: "Order", To: "Ghost"}}) {
		t.Errorf("Unexpected dangling edges %v", dangling)
	}

	order, info := g.Order()
	if info != nil {
		t.Errorf("Dangling import must not block ordering: %+v", info)
	}
	if !reflect.DeepEqual(order, []string{"Customer", "Order"}) {
		t.Errorf("Unexpected order %v", order)
	}
}
