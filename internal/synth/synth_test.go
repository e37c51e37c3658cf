package synth

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/typeprobe/internal/infer"
)

func customerResult() *infer.Result {
	return &infer.Result{Entity: "Customer", Transform: "CustomerResource", TypeName: "Customer", Fields: []infer.InferredField{
		{Name: "id", Type: infer.Prim("number")},
		{Name: "email", Type: infer.Prim("string"), Nullable: true},
	}}
}

func orderResult() *infer.Result {
	return &infer.Result{
		Entity: "Order", Transform: "OrderResource", TypeName: "Order",
		Fields: []infer.InferredField{
			{Name: "id", Type: infer.Prim("number")},
			{Name: "note", Type: infer.Prim("string"), Nullable: true},
			{Name: "status", Type: infer.TSType{Kind: infer.Literal, Values: []string{"pending", "done"}, Alias: "OrderStatus"}},
			{Name: "customer", Type: infer.Ref("Customer"), CrossReference: "Customer"},
		},
		Nested: []*infer.Result{customerResult()},
	}
}

func invoiceResult() *infer.Result {
	return &infer.Result{
		Entity: "Invoice", Transform: "InvoiceResource", TypeName: "Invoice",
		Fields: []infer.InferredField{
			{Name: "billedTo", Type: infer.Ref("Customer"), CrossReference: "Customer", Optional: true},
		},
		Nested: []*infer.Result{customerResult()},
	}
}

func TestSynthesize_DedupIdempotence(t *testing.T) {
	run := func() *Output {
		s := New(nil)
		assert.True(t, s.Add(orderResult()))
		assert.True(t, s.Add(invoiceResult()))
		assert.True(t, s.Add(customerResult()), "a top-level result replaces the cross-referenced view")
		assert.False(t, s.Add(customerResult()))
		out, err := s.Synthesize()
		require.NoError(t, err)
		return out
	}

	first := run()
	second := run()

	require.Len(t, first.Declarations, 3)
	names := []string{first.Declarations[0].TypeName, first.Declarations[1].TypeName, first.Declarations[2].TypeName}
	assert.Equal(t, []string{"Customer", "Invoice", "Order"}, names)
	assert.Equal(t, []string{"Customer"}, first.Declarations[1].Imports)
	assert.Equal(t, []string{"Customer"}, first.Declarations[2].Imports)
	assert.Equal(t, first.Manifest, second.Manifest)
	assert.Equal(t, []string{
		"export * from './Customer';",
		"export * from './Invoice';",
		"export * from './Order';",
	}, first.Manifest)
	assert.Equal(t, "Customer", first.Order[0])
	assert.Nil(t, first.Cycles)
	assert.Empty(t, first.Unresolved)
}

func TestSynthesize_FirstWriterWins(t *testing.T) {
	s := New(nil)
	s.Add(orderResult())
	other := &infer.Result{Entity: "Order", Transform: "OrderResource", TypeName: "Order", Fields: []infer.InferredField{
		{Name: "only", Type: infer.Prim("string")},
	}}
	assert.False(t, s.Add(other))

	out, err := s.Synthesize()
	require.NoError(t, err)
	for _, d := range out.Declarations {
		if d.TypeName == "Order" {
			assert.Len(t, d.Fields, 4)
		}
	}
}

func TestSynthesize_TopLevelResultBeatsNestedView(t *testing.T) {
	// Customer as seen from Order, cut before its own relations
	cut := &infer.Result{Entity: "Customer", Transform: "CustomerResource", TypeName: "Customer", Fields: []infer.InferredField{
		{Name: "id", Type: infer.Prim("number")},
	}}
	order := orderResult()
	order.Nested = []*infer.Result{cut}

	full := customerResult()
	full.Fields = append(full.Fields, infer.InferredField{Name: "orders", Type: infer.ArrayOf(infer.Ref("Order"))})

	s := New(nil)
	assert.True(t, s.Add(order))
	assert.True(t, s.Add(full))
	assert.Equal(t, 2, s.Len())

	out, err := s.Synthesize()
	require.NoError(t, err)
	require.Len(t, out.Declarations, 2)
	customer := out.Declarations[0]
	assert.Equal(t, "Customer", customer.TypeName)
	assert.Len(t, customer.Fields, 3)
	assert.Equal(t, []string{"Order"}, customer.Imports)
}

func TestSynthesize_NestedViewFillsMissingType(t *testing.T) {
	s := New(nil)
	s.Add(orderResult())
	assert.Equal(t, 2, s.Len())

	out, err := s.Synthesize()
	require.NoError(t, err)
	require.Len(t, out.Declarations, 2)
	assert.Equal(t, "Customer", out.Declarations[0].TypeName)
	assert.Empty(t, out.Unresolved)
}

func TestSynthesize_CycleTermination(t *testing.T) {
	post := &infer.Result{Entity: "Post", Transform: "PostResource", TypeName: "Post", Fields: []infer.InferredField{
		{Name: "author", Type: infer.Ref("Author")},
	}}
	author := &infer.Result{Entity: "Author", Transform: "AuthorResource", TypeName: "Author", Fields: []infer.InferredField{
		{Name: "posts", Type: infer.ArrayOf(infer.Ref("Post"))},
	}}
	post.Nested = []*infer.Result{author}

	s := New(nil)
	s.Add(post)
	s.Add(author)

	out, err := s.Synthesize()
	require.NoError(t, err)
	require.Len(t, out.Declarations, 2)
	require.NotNil(t, out.Cycles)
	assert.ElementsMatch(t, []string{"Author", "Post"}, out.Cycles.CycleParticipants)
	assert.Len(t, out.Order, 2)

	assert.Contains(t, Render(out.Declarations[0]), "posts: Post[];")
	assert.Contains(t, Render(out.Declarations[1]), "author: Author;")
}

func TestSynthesize_UnresolvedReferenceDegrades(t *testing.T) {
	s := New(nil)
	s.Add(&infer.Result{Entity: "Order", Transform: "OrderResource", TypeName: "Order", Fields: []infer.InferredField{
		{Name: "shipment", Type: infer.Ref("Shipment")},
		{Name: "parcels", Type: infer.TSType{Kind: infer.Object, Fields: []infer.InferredField{
			{Name: "items", Type: infer.ArrayOf(infer.Ref("Shipment"))},
		}}},
	}})

	out, err := s.Synthesize()
	require.NoError(t, err)
	require.Len(t, out.Unresolved, 1)
	assert.Equal(t, "Shipment", out.Unresolved[0].To)

	d := out.Declarations[0]
	assert.Empty(t, d.Imports)
	assert.Equal(t, "unknown", d.Fields[0].TypeString())
	assert.Equal(t, "{ items: unknown[] }", d.Fields[1].TypeString())
}

func TestSynthesize_AliasCollidingWithDeclaration(t *testing.T) {
	s := New(nil)
	s.Add(&infer.Result{Transform: "Order", TypeName: "Order", Fields: []infer.InferredField{
		{Name: "status", Type: infer.TSType{Kind: infer.Literal, Values: []string{"a"}, Alias: "OrderStatus"}},
	}})
	s.Add(&infer.Result{Transform: "OrderStatus", TypeName: "OrderStatus"})

	out, err := s.Synthesize()
	require.NoError(t, err)
	order := out.Declarations[0]
	assert.Empty(t, order.Aliases)
	assert.Equal(t, "'a'", order.Fields[0].TypeString())
}

func TestSynthesizer_ConcurrentAdd(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup
	added := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added <- s.Add(customerResult())
		}()
	}
	wg.Wait()
	close(added)

	wins := 0
	for a := range added {
		if a {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, s.Len())
}

func TestRender(t *testing.T) {
	s := New(nil)
	s.Add(orderResult())
	out, err := s.Synthesize()
	require.NoError(t, err)

	var order *Declaration
	for _, d := range out.Declarations {
		if d.TypeName == "Order" {
			order = d
		}
	}
	require.NotNil(t, order)

	want := `// Generated from OrderResource

import type { Customer } from './Customer';

export type OrderStatus = 'pending' | 'done';

export interface Order {
  id: number;
  note: string | null;
  status: OrderStatus;
  customer: Customer;
}
`
	assert.Equal(t, want, Render(order))
}

func TestRenderManifest(t *testing.T) {
	assert.Equal(t, "export {};\n", RenderManifest(nil))
	assert.Equal(t, "export * from './A';\nexport * from './B';\n",
		RenderManifest([]string{"export * from './A';", "export * from './B';"}))
}
