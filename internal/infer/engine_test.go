package infer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/typeprobe/internal/fingerprint"
	"github.com/dbsmedya/typeprobe/internal/probe"
	"github.com/dbsmedya/typeprobe/internal/schema"
	"github.com/dbsmedya/typeprobe/internal/transform"
	"github.com/dbsmedya/typeprobe/internal/types"
)

// fixture seeds an entity by hand the way the seeder does and runs a
// transform over both probes.
type fixture struct {
	t        *testing.T
	registry *fingerprint.Registry
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	reg := fingerprint.NewRegistry()
	return &fixture{t: t, registry: reg, engine: NewEngine(reg, NewNamer([]string{"Resource"}), nil)}
}

func (fx *fixture) seed(ent *schema.Entity, full, null map[string]interface{}) types.ProbePair {
	pair := types.ProbePair{
		Full: &types.ProbeRecord{Entity: ent.ID, Kind: types.ProbeFull, Values: types.NewAttributes()},
		Null: &types.ProbeRecord{Entity: ent.ID, Kind: types.ProbeNull, Values: types.NewAttributes()},
	}
	for _, c := range ent.Columns {
		pair.Full.Values.Set(c.Name, full[c.Name])
		pair.Null.Values.Set(c.Name, null[c.Name])
	}
	fx.engine.Register(ent, pair)
	return pair
}

func (fx *fixture) outputs(entity string, tr transform.Transform, pair types.ProbePair) *probe.Outputs {
	out, err := probe.New(0, nil).ProbePair(context.Background(), entity, tr,
		transform.NewRecord(entity, types.ProbeFull, pair.Full.Values),
		transform.NewRecord(entity, types.ProbeNull, pair.Null.Values))
	require.NoError(fx.t, err)
	return out
}

func attr(rec *transform.Record, column string) interface{} {
	v, _ := rec.Get(column)
	return v
}

func field(t *testing.T, fields []InferredField, name string) InferredField {
	t.Helper()
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("field %s not inferred", name)
	return InferredField{}
}

func orderEntity() *schema.Entity {
	return &schema.Entity{ID: "Order", Table: "orders", Transform: "OrderResource", Columns: []schema.Column{
		{Name: "id", Kind: schema.KindInteger, PrimaryKey: true},
		{Name: "note", Kind: schema.KindText, Nullable: true},
		{Name: "status", Kind: schema.KindEnum, EnumValues: []string{"pending", "done"}},
	}}
}

func TestInfer_OrderScenario(t *testing.T) {
	fx := newFixture(t)
	ent := orderEntity()
	token := fx.registry.Make("Order", "note", schema.KindText, true)
	pair := fx.seed(ent,
		map[string]interface{}{"id": int64(1), "note": token, "status": "pending"},
		map[string]interface{}{"id": int64(2), "note": nil, "status": "done"})

	res := fx.engine.Infer("Order", fx.outputs("Order", transform.Identity("OrderResource"), pair))

	assert.Equal(t, "Order", res.TypeName)
	require.Len(t, res.Fields, 3)
	assert.Equal(t, []string{"id", "note", "status"}, []string{res.Fields[0].Name, res.Fields[1].Name, res.Fields[2].Name})

	id := res.Fields[0]
	assert.Equal(t, "number", id.TypeString())
	assert.False(t, id.Nullable)
	assert.False(t, id.Optional)

	note := res.Fields[1]
	assert.Equal(t, "string | null", note.TypeString())
	assert.Equal(t, FromFingerprint, note.Provenance)
	assert.Equal(t, "Order.note", note.Source)
	assert.False(t, note.Optional)

	status := res.Fields[2]
	assert.Equal(t, Literal, status.Type.Kind)
	assert.Equal(t, []string{"pending", "done"}, status.Type.Values)
	assert.Equal(t, "OrderStatus", status.Type.Alias)
	assert.False(t, status.Nullable)
	assert.False(t, status.Optional)
	assert.Empty(t, res.Ambiguities)
}

func TestInfer_NullabilityRoundTrip(t *testing.T) {
	fx := newFixture(t)
	ent := &schema.Entity{ID: "Post", Table: "posts", Columns: []schema.Column{
		{Name: "body", Kind: schema.KindText, Nullable: true},
		{Name: "views", Kind: schema.KindInteger},
	}}
	pair := fx.seed(ent,
		map[string]interface{}{"body": fx.registry.Make("Post", "body", schema.KindText, true), "views": int64(123)},
		map[string]interface{}{"body": nil, "views": int64(456)})

	res := fx.engine.Infer("Post", fx.outputs("Post", transform.Identity("Post"), pair))
	body := field(t, res.Fields, "body")
	assert.True(t, body.Nullable)
	assert.False(t, body.Optional)

	views := field(t, res.Fields, "views")
	assert.False(t, views.Nullable)
	assert.False(t, views.Optional)
	assert.Equal(t, "number", views.TypeString())
}

func TestInfer_OptionalWhenOmitted(t *testing.T) {
	fx := newFixture(t)
	ent := &schema.Entity{ID: "Post", Table: "posts", Columns: []schema.Column{
		{Name: "body", Kind: schema.KindText, Nullable: true},
	}}
	pair := fx.seed(ent,
		map[string]interface{}{"body": fx.registry.Make("Post", "body", schema.KindText, true)},
		map[string]interface{}{"body": nil})

	tr := transform.NewFunc("PostResource", func(_ context.Context, rec *transform.Record) (interface{}, error) {
		out := transform.NewObject()
		if body, _ := rec.Get("body"); body != nil {
			out.Set("excerpt", body)
		}
		out.Set("kind", "post")
		return out, nil
	})

	res := fx.engine.Infer("Post", fx.outputs("Post", tr, pair))
	excerpt := field(t, res.Fields, "excerpt")
	assert.True(t, excerpt.Optional)
	assert.False(t, excerpt.Nullable)
	assert.Equal(t, "excerpt?: string", excerpt.Signature())
	assert.Equal(t, "Post.body", excerpt.Source)

	kind := field(t, res.Fields, "kind")
	assert.Equal(t, FromStructure, kind.Provenance)
}

func TestInfer_KeyOnlyInNullOutput(t *testing.T) {
	fx := newFixture(t)
	ent := &schema.Entity{ID: "Post", Table: "posts", Columns: []schema.Column{
		{Name: "body", Kind: schema.KindText, Nullable: true},
	}}
	pair := fx.seed(ent,
		map[string]interface{}{"body": "x"},
		map[string]interface{}{"body": nil})

	tr := transform.NewFunc("PostResource", func(_ context.Context, rec *transform.Record) (interface{}, error) {
		out := transform.NewObject()
		if body, _ := rec.Get("body"); body == nil {
			out.Set("placeholder", "empty")
		}
		return out, nil
	})

	res := fx.engine.Infer("Post", fx.outputs("Post", tr, pair))
	ph := field(t, res.Fields, "placeholder")
	assert.True(t, ph.Optional)
	assert.True(t, ph.Nullable)
	assert.Equal(t, "string | null", ph.TypeString())
}

func TestInfer_NullInFullOutputIsNullable(t *testing.T) {
	fx := newFixture(t)
	ent := &schema.Entity{ID: "Post", Table: "posts", Columns: []schema.Column{
		{Name: "body", Kind: schema.KindText, Nullable: true},
	}}
	pair := fx.seed(ent,
		map[string]interface{}{"body": "x"},
		map[string]interface{}{"body": nil})

	tr := transform.NewFunc("PostResource", func(_ context.Context, rec *transform.Record) (interface{}, error) {
		out := transform.NewObject()
		if body, _ := rec.Get("body"); body == nil {
			out.Set("hint", "empty")
		} else {
			out.Set("hint", nil)
		}
		return out, nil
	})

	res := fx.engine.Infer("Post", fx.outputs("Post", tr, pair))
	hint := field(t, res.Fields, "hint")
	assert.True(t, hint.Nullable)
	assert.False(t, hint.Optional)
	assert.Equal(t, "string | null", hint.TypeString())
}

func TestInfer_TruncatedTokenFallsBackToText(t *testing.T) {
	fx := newFixture(t)
	ent := &schema.Entity{ID: "Code", Table: "codes", Columns: []schema.Column{
		{Name: "short", Kind: schema.KindText, MaxLength: 5},
	}}
	token := fx.registry.Make("Code", "short", schema.KindText, false)
	other := fx.registry.Make("Code", "short", schema.KindText, false)
	pair := fx.seed(ent,
		map[string]interface{}{"short": token[:5]},
		map[string]interface{}{"short": other[:5]})

	tr := transform.NewFunc("CodeResource", func(_ context.Context, rec *transform.Record) (interface{}, error) {
		v, _ := rec.Get("short")
		return map[string]interface{}{"label": v}, nil
	})

	res := fx.engine.Infer("Code", fx.outputs("Code", tr, pair))
	label := field(t, res.Fields, "label")
	assert.Equal(t, "string", label.TypeString(), "declared kind, not unknown")
	assert.True(t, label.Ambiguous)
	require.Len(t, res.Ambiguities, 1)
	assert.Equal(t, "label", res.Ambiguities[0].Field)
}

func TestInfer_TruncatedTokenDoesNotMatchEarlierToken(t *testing.T) {
	fx := newFixture(t)
	fx.registry.Make("Other", "count", schema.KindInteger, false)
	var token string
	for i := 0; i < 40; i++ {
		token = fx.registry.Make("Label", "code", schema.KindText, false)
	}

	ent := &schema.Entity{ID: "Label", Table: "labels", Columns: []schema.Column{
		{Name: "code", Kind: schema.KindText, MaxLength: 16},
	}}
	pair := fx.seed(ent,
		map[string]interface{}{"code": token[:16]},
		map[string]interface{}{"code": token[:16]})

	tr := transform.NewFunc("LabelResource", func(_ context.Context, rec *transform.Record) (interface{}, error) {
		return map[string]interface{}{"label": attr(rec, "code")}, nil
	})

	res := fx.engine.Infer("Label", fx.outputs("Label", tr, pair))
	label := field(t, res.Fields, "label")
	assert.Equal(t, "string", label.TypeString())
	assert.NotEqual(t, "Other.count", label.Source)
	assert.True(t, label.Ambiguous)
}

func TestInfer_CrossReferencesAndNesting(t *testing.T) {
	fx := newFixture(t)
	customer := &schema.Entity{ID: "Customer", Table: "customers", Columns: []schema.Column{
		{Name: "email", Kind: schema.KindText, Nullable: true},
	}}
	custPair := fx.seed(customer,
		map[string]interface{}{"email": fx.registry.Make("Customer", "email", schema.KindText, true)},
		map[string]interface{}{"email": nil})

	ent := orderEntity()
	pair := fx.seed(ent,
		map[string]interface{}{"id": int64(1), "note": "n", "status": "pending"},
		map[string]interface{}{"id": int64(2), "note": nil, "status": "done"})

	custRes := transform.Identity("CustomerResource")
	tr := transform.NewFunc("OrderResource", func(_ context.Context, rec *transform.Record) (interface{}, error) {
		cust := transform.NewRecord("Customer", rec.Kind, custPair.Get(rec.Kind).Values)
		out := transform.NewObject()
		out.Set("customer", transform.NewResource(custRes, cust))
		out.Set("buyers", transform.NewCollection(custRes, []*transform.Record{cust}))
		out.Set("tags", []interface{}{"a", "b"})
		out.Set("meta", map[string]interface{}{"status": attr(rec, "status")})
		out.Set("empty", []interface{}{})
		return out, nil
	})

	res := fx.engine.Infer("Order", fx.outputs("Order", tr, pair))

	cust := field(t, res.Fields, "customer")
	assert.Equal(t, "Customer", cust.TypeString())
	assert.Equal(t, "Customer", cust.CrossReference)

	buyers := field(t, res.Fields, "buyers")
	assert.Equal(t, "Customer[]", buyers.TypeString())

	assert.Equal(t, "string[]", field(t, res.Fields, "tags").TypeString())
	assert.Equal(t, "unknown[]", field(t, res.Fields, "empty").TypeString())

	meta := field(t, res.Fields, "meta")
	assert.Equal(t, "{ status: OrderStatus }", meta.TypeString(), "enum value matched inside an inline object")

	require.Len(t, res.Nested, 1, "one nested declaration per type name")
	nested := res.Nested[0]
	assert.Equal(t, "Customer", nested.TypeName)
	assert.Equal(t, "CustomerResource", nested.Transform)
	email := field(t, nested.Fields, "email")
	assert.Equal(t, "string | null", email.TypeString(), "nested declarations are differential too")
}

func TestInfer_ColumnNameMatch(t *testing.T) {
	fx := newFixture(t)
	ent := &schema.Entity{ID: "Flag", Table: "flags", Columns: []schema.Column{
		{Name: "is_active", Kind: schema.KindBoolean},
		{Name: "payload", Kind: schema.KindJSON},
	}}
	pair := fx.seed(ent,
		map[string]interface{}{"is_active": int64(1), "payload": `"x"`},
		map[string]interface{}{"is_active": int64(0), "payload": `"y"`})

	tr := transform.NewFunc("Flag", func(_ context.Context, rec *transform.Record) (interface{}, error) {
		return map[string]interface{}{
			"isActive": attr(rec, "is_active"),
			"payload":  attr(rec, "payload"),
		}, nil
	})

	res := fx.engine.Infer("Flag", fx.outputs("Flag", tr, pair))
	active := field(t, res.Fields, "isActive")
	assert.Equal(t, "boolean", active.TypeString())
	assert.Equal(t, FromColumn, active.Provenance)
	assert.Equal(t, "unknown", field(t, res.Fields, "payload").TypeString())
}

func TestInfer_AmbiguousEnumValue(t *testing.T) {
	fx := newFixture(t)
	ent := &schema.Entity{ID: "Task", Table: "tasks", Columns: []schema.Column{
		{Name: "state", Kind: schema.KindEnum, EnumValues: []string{"open", "closed"}},
		{Name: "review", Kind: schema.KindEnum, EnumValues: []string{"open", "closed"}},
	}}
	pair := fx.seed(ent,
		map[string]interface{}{"state": "open", "review": "open"},
		map[string]interface{}{"state": "closed", "review": "closed"})

	tr := transform.NewFunc("Task", func(_ context.Context, rec *transform.Record) (interface{}, error) {
		return map[string]interface{}{
			"state":   attr(rec, "state"),
			"current": attr(rec, "review"),
		}, nil
	})

	res := fx.engine.Infer("Task", fx.outputs("Task", tr, pair))
	assert.Equal(t, "TaskState", field(t, res.Fields, "state").TypeString(), "name breaks the tie")

	current := field(t, res.Fields, "current")
	assert.Equal(t, "string", current.TypeString())
	assert.True(t, current.Ambiguous)
	assert.Len(t, res.Ambiguities, 1)
}
