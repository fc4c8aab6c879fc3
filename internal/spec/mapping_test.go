package spec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateModelMappings_Petstore(t *testing.T) {
	t.Parallel()
	c := parsePetstore(t)

	pets, ok := c.ModelMappings["pets"]
	if !ok {
		t.Fatalf("missing pets mapping, got %v", sortedKeys(c.ModelMappings))
	}
	if pets.ModelName != "Pet" || pets.BaseEndpoint != "/pets" || pets.SchemaName != "Pet" {
		t.Fatalf("pets mapping: got %+v", pets)
	}
	wantOps := map[OperationType]string{
		OpIndex:   "get_pets",
		OpStore:   "createPet",
		OpShow:    "get_pets_id",
		OpUpdate:  "put_pets_id",
		OpDestroy: "delete_pets_id",
	}
	for typ, id := range wantOps {
		got, ok := pets.Operation(typ)
		if !ok || got != id {
			t.Errorf("%s: got %q want %q", typ, got, id)
		}
	}

	wantRel := []RelationshipHint{
		{Name: "owner", TargetResource: "Owner", Cardinality: One},
		{Name: "tags", TargetResource: "Tag", Cardinality: Many},
	}
	if diff := cmp.Diff(wantRel, pets.Relationships); diff != "" {
		t.Fatalf("relationships (-want +got):\n%s", diff)
	}

	var names []string
	for _, a := range pets.Attributes {
		names = append(names, a.Name)
		if a.Name == "id" && (!a.Required || a.Type != "integer" || a.Format != "int64") {
			t.Errorf("id attribute: got %+v", a)
		}
	}
	if diff := cmp.Diff([]string{"id", "name", "owner", "price", "status", "tags"}, names); diff != "" {
		t.Fatalf("attributes (-want +got):\n%s", diff)
	}

	owners := c.ModelMappings["owners"]
	if owners == nil || owners.SchemaName != "Owner" {
		t.Fatalf("owners mapping: got %+v", owners)
	}
	if len(owners.Operations) != 1 || owners.Operations[0].Type != OpIndex {
		t.Fatalf("owners operations: got %+v", owners.Operations)
	}
}

func TestGenerateModelMappings_SchemaFromResponse(t *testing.T) {
	t.Parallel()
	reg := Registry{
		"Creature": {Name: "Creature", Type: "object", Properties: map[string]*SchemaDefinition{"name": {Type: "string"}}},
	}
	endpoints := map[string]*Endpoint{
		"listAnimals": {
			OperationID: "listAnimals", Path: "/zoo/animals", Method: GET,
			Responses: map[string]ResponseSpec{
				"404": {Content: map[string]*SchemaDefinition{"application/json": {Ref: "Error"}}},
				"200": {Content: map[string]*SchemaDefinition{
					"application/xml":  {Ref: "Other"},
					"application/json": {Type: "array", Items: &SchemaDefinition{Ref: "Creature"}},
				}},
			},
		},
	}
	mm := GenerateModelMappings(endpoints, reg)["animals"]
	if mm == nil {
		t.Fatalf("missing animals mapping")
	}
	if mm.BaseEndpoint != "/zoo/animals" || mm.ModelName != "Animal" || mm.SchemaName != "Creature" {
		t.Fatalf("animals mapping: got %+v", mm)
	}
}

func TestGenerateModelMappings_SkipsParameterOnlyPaths(t *testing.T) {
	t.Parallel()
	endpoints := map[string]*Endpoint{
		"root":  {OperationID: "root", Path: "/", Method: GET},
		"param": {OperationID: "param", Path: "/{tenant}", Method: GET},
	}
	if got := GenerateModelMappings(endpoints, Registry{}); len(got) != 0 {
		t.Fatalf("expected no mappings, got %v", sortedKeys(got))
	}
}

func TestModelName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"pets":        "Pet",
		"pet_owners":  "PetOwner",
		"categories":  "Category",
		"people":      "Person",
		"order-items": "OrderItem",
		"status":      "Status",
		"":            "",
	}
	for in, want := range cases {
		if got := ModelName(in); got != want {
			t.Errorf("ModelName(%q): got %q want %q", in, got, want)
		}
	}
}
