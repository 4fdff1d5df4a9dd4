package neogm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neogm/examples/models"
)

// Crew caps a slice field at one relationship.
type Crew struct {
	ID   string           `crud:"id"`
	Lead []*models.Person `crud:"rel:LEADS,one"`
}

func matrix() (*models.Movie, *models.Person, *models.Person, *models.Person) {
	keanu := &models.Person{Name: "Keanu Reeves", Born: models.Year(1964)}
	carrie := &models.Person{Name: "Carrie-Anne Moss", Born: models.Year(1967)}
	lana := &models.Person{Name: "Lana Wachowski", Born: models.Year(1965)}
	movie := &models.Movie{
		Title:       "The Matrix",
		Description: "Welcome to the Real World",
		Actors:      []*models.Role{models.NewRole(keanu, "Neo"), models.NewRole(carrie, "Trinity")},
		Directors:   []*models.Person{lana},
	}
	return movie, keanu, carrie, lana
}

func TestFlattenMovieGraph(t *testing.T) {
	mapper := NewMapper(movieRegistry(t))
	movie, _, _, _ := matrix()

	graph, err := mapper.Flatten(movie)
	require.NoError(t, err)

	require.Len(t, graph.Nodes, 4)
	assert.Equal(t, "Movie", graph.Nodes[0].Meta.Label)
	assert.True(t, graph.Nodes[0].IsNew())
	assert.Equal(t, map[string]any{"title": "The Matrix", "tagline": "Welcome to the Real World"}, graph.Nodes[0].Props)
	assert.Equal(t, "Keanu Reeves", graph.Nodes[1].Props["name"])
	assert.Equal(t, int64(1964), graph.Nodes[1].Props["born"])
	assert.Equal(t, "Carrie-Anne Moss", graph.Nodes[2].Props["name"])
	assert.Equal(t, "Lana Wachowski", graph.Nodes[3].Props["name"])

	require.Len(t, graph.Relationships, 3)
	for i, rel := range graph.Relationships {
		assert.Equal(t, i, rel.Index)
		assert.Equal(t, 0, rel.To, "incoming relationships end at the movie")
	}
	neo := graph.Relationships[0]
	assert.Equal(t, "ACTED_IN", neo.Type)
	assert.Equal(t, 1, neo.From)
	assert.Equal(t, map[string]any{"roles": []any{"Neo"}}, neo.Props)

	directed := graph.Relationships[2]
	assert.Equal(t, "DIRECTED", directed.Type)
	assert.Equal(t, 3, directed.From)
	assert.Empty(t, directed.Props)
}

func TestFlattenSharedReference(t *testing.T) {
	mapper := NewMapper(movieRegistry(t))
	movie, keanu, _, _ := matrix()
	movie.Directors = append(movie.Directors, keanu)

	graph, err := mapper.Flatten(movie)
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 4, "keanu is one node")
	require.Len(t, graph.Relationships, 4)
	assert.Equal(t, 1, graph.Relationships[3].From)
	assert.Equal(t, "DIRECTED", graph.Relationships[3].Type)
}

func TestFlattenEqualValuesAreDistinctInstances(t *testing.T) {
	mapper := NewMapper(movieRegistry(t))
	movie := &models.Movie{
		Title:     "Twins",
		Directors: []*models.Person{{Name: "Ivan Reitman"}, {Name: "Ivan Reitman"}},
	}
	graph, err := mapper.Flatten(movie)
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 3)
}

func TestFlattenCycles(t *testing.T) {
	registry, err := NewRegistry(Friend{})
	require.NoError(t, err)
	mapper := NewMapper(registry)

	a := &Friend{Name: "Alice"}
	b := &Friend{Name: "Bob"}
	a.Knows = []*Friend{b}
	b.Knows = []*Friend{a}

	graph, err := mapper.Flatten(a)
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 2)
	require.Len(t, graph.Relationships, 2)
	assert.Equal(t, [2]int{0, 1}, [2]int{graph.Relationships[0].From, graph.Relationships[0].To})
	assert.Equal(t, [2]int{1, 0}, [2]int{graph.Relationships[1].From, graph.Relationships[1].To})

	self := &Friend{Name: "Narcissus"}
	self.Knows = []*Friend{self, self}
	graph, err = mapper.Flatten(self)
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 1)
	assert.Len(t, graph.Relationships, 1, "bare relationships are unique per endpoints")
}

func TestFlattenKeepsIdentities(t *testing.T) {
	mapper := NewMapper(movieRegistry(t))
	movie, keanu, _, _ := matrix()
	movie.ID = "4:node:10"
	keanu.ID = "4:node:11"
	movie.Actors[0].ID = "5:rel:12"

	graph, err := mapper.Flatten(movie)
	require.NoError(t, err)
	assert.False(t, graph.Nodes[0].IsNew())
	assert.Equal(t, "4:node:10", graph.Nodes[0].ID)
	assert.Equal(t, "4:node:11", graph.Nodes[1].ID)
	assert.True(t, graph.Nodes[2].IsNew())
	assert.Equal(t, "5:rel:12", graph.Relationships[0].ID)
	assert.Empty(t, graph.Relationships[1].ID)
}

func TestFlattenRejects(t *testing.T) {
	registry, err := NewRegistry(append(models.Entities(), Crew{})...)
	require.NoError(t, err)
	mapper := NewMapper(registry)

	tests := []struct {
		name   string
		entity any
		target error
	}{
		{name: "value instead of pointer", entity: models.Movie{}, target: ErrInvalidEntity},
		{name: "nil pointer", entity: (*models.Movie)(nil), target: ErrInvalidEntity},
		{name: "unregistered", entity: &Friend{}, target: ErrInvalidEntity},
		{name: "relationship entity", entity: &models.Role{Person: &models.Person{}}, target: ErrInvalidEntity},
		{name: "nil element", entity: &models.Movie{Directors: []*models.Person{nil}}, target: ErrInvalidEntity},
		{name: "role without person", entity: &models.Movie{Actors: []*models.Role{{Roles: []string{"Neo"}}}}, target: ErrInvalidEntity},
		{name: "one relationship held twice", entity: &Crew{Lead: []*models.Person{{Name: "A"}, {Name: "B"}}}, target: ErrCardinalityViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mapper.Flatten(tt.entity)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestFlattenOneRelationshipOnSlice(t *testing.T) {
	registry, err := NewRegistry(Crew{}, models.Person{})
	require.NoError(t, err)
	graph, err := NewMapper(registry).Flatten(&Crew{Lead: []*models.Person{{Name: "A"}}})
	require.NoError(t, err)
	assert.Len(t, graph.Relationships, 1)
}
