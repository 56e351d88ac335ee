package complexity

import (
	"errors"
	"testing"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

func loadSchema(t *testing.T, sdl string) *ast.Schema {
	t.Helper()
	return gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
}

func TestBuildTable_RejectsNegativeWeights(t *testing.T) {
	schema := loadSchema(t, `type Query { name: String }`)

	_, err := BuildTable(schema, WithTypeWeights(TypeWeights{Mutation: 10, Object: -1, Scalar: 0, Connection: 2}))
	if !errors.Is(err, ErrNegativeWeight) {
		t.Fatalf("expected ErrNegativeWeight, got %v", err)
	}
}

func TestBuildTable_RootOperationKeys(t *testing.T) {
	schema := loadSchema(t, `
		type Query { name: String }
		type Mutation { rename(name: String): String }
	`)

	table, err := BuildTable(schema)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	if w, ok := table.Weight("query"); !ok || w != 1 {
		t.Fatalf("expected query root weight 1, got %d (ok=%v)", w, ok)
	}
	if w, ok := table.Weight("mutation"); !ok || w != 10 {
		t.Fatalf("expected mutation root weight 10, got %d (ok=%v)", w, ok)
	}
}

func TestBuildTable_ConnectionPatternBySuffix(t *testing.T) {
	schema := loadSchema(t, `
		type Query { users(first: Int): UserConnection }
		type UserConnection { total: Int }
	`)

	table, err := BuildTable(schema)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	if w, _ := table.Weight("userconnection"); w != 2 {
		t.Fatalf("expected connection weight 2, got %d", w)
	}
}

func TestBuildTable_ConnectionPatternByShape(t *testing.T) {
	schema := loadSchema(t, `
		type Query { users: Users }
		type Users {
			edges: [UserEdge]
			pageInfo: PageInfo
		}
		type UserEdge { node: User }
		type User { name: String }
		type PageInfo { hasNextPage: Boolean }
	`)

	table, err := BuildTable(schema)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	if w, _ := table.Weight("users"); w != 2 {
		t.Fatalf("expected edges+pageInfo shape to weigh 2, got %d", w)
	}
	if w, _ := table.Weight("user"); w != 1 {
		t.Fatalf("expected plain object weight 1, got %d", w)
	}
}

func TestBuildTable_UnboundedListFailsInStrictMode(t *testing.T) {
	schema := loadSchema(t, `
		type Query { all: [Item] }
		type Item { name: String }
	`)

	_, err := BuildTable(schema, WithEnforceBoundedLists(true))
	if !errors.Is(err, ErrUnboundedList) {
		t.Fatalf("expected ErrUnboundedList, got %v", err)
	}
}

func TestBuildTable_UnboundedListUsesSentinelWhenLax(t *testing.T) {
	schema := loadSchema(t, `
		type Query { all: [Item] }
		type Item { name: String }
	`)

	table, err := BuildTable(schema, WithDefaultListSize(3))
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	doc, errs := gqlparser.LoadQuery(schema, `query { all { name } }`)
	if len(errs) > 0 {
		t.Fatalf("LoadQuery: %v", errs)
	}

	res, err := Analyze(doc, nil, table)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Cost != 4 {
		t.Fatalf("expected cost 4 (1 root + 3 sentinel items), got %d", res.Cost)
	}
}

func TestBuildTable_CustomSlicingArguments(t *testing.T) {
	schema := loadSchema(t, `
		type Query { all(top: Int): [Item] }
		type Item { name: String }
	`)

	table, err := BuildTable(schema, WithSlicingArguments("top"))
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	doc, errs := gqlparser.LoadQuery(schema, `query { all(top: 4) { name } }`)
	if len(errs) > 0 {
		t.Fatalf("LoadQuery: %v", errs)
	}

	res, err := Analyze(doc, nil, table)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Cost != 5 {
		t.Fatalf("expected cost 5 (1 root + 4 items), got %d", res.Cost)
	}
}

func TestBuildTable_FieldDescriptors(t *testing.T) {
	schema := loadSchema(t, `
		type Query {
			hero: Hero
			heroes(first: Int): [Hero]
		}
		type Hero { name: String }
	`)

	table, err := BuildTable(schema)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	f, ok := table.Field("query", "hero")
	if !ok || f.Kind != FieldRef || f.ResolveTo != "hero" {
		t.Fatalf("expected hero to be a ref to hero, got %+v (ok=%v)", f, ok)
	}

	f, ok = table.Field("query", "heroes")
	if !ok || f.Kind != FieldList || f.ResolveTo != "hero" || f.Rule == nil {
		t.Fatalf("expected heroes to be a bounded list of hero, got %+v (ok=%v)", f, ok)
	}

	f, ok = table.Field("hero", "name")
	if !ok || f.Kind != FieldLeaf || f.Weight != 0 {
		t.Fatalf("expected name to be a zero-weight leaf, got %+v (ok=%v)", f, ok)
	}
}

func TestBuildTable_SkipsIntrospectionTypes(t *testing.T) {
	schema := loadSchema(t, `type Query { name: String }`)

	table, err := BuildTable(schema)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	if table.Has("__schema") || table.Has("__type") {
		t.Fatalf("expected introspection types to be skipped")
	}
}

func TestBuildTable_NegativeSentinelIsRejected(t *testing.T) {
	schema := loadSchema(t, `type Query { name: String }`)

	_, err := BuildTable(schema, WithDefaultListSize(-1))
	if !errors.Is(err, ErrNegativeWeight) {
		t.Fatalf("expected ErrNegativeWeight, got %v", err)
	}
}
