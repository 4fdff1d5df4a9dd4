package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/go-neogm/examples/models"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Save a small set of movies, actors and directors",
		Long: `Save a small set of movies, actors and directors.

Seeding twice does not duplicate anything: people are shared between movies
and every save matches existing nodes by their properties.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				for _, m := range seedMovies() {
					if err := s.manager.Save(ctx, m); err != nil {
						return fmt.Errorf("saving %q: %w", m.Title, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "saved %-28s %s\n", m.Title, m.ID)
				}
				return nil
			})
		},
	}
}

func seedMovies() []*models.Movie {
	keanu := &models.Person{Name: "Keanu Reeves", Born: models.Year(1964)}
	carrie := &models.Person{Name: "Carrie-Anne Moss", Born: models.Year(1967)}
	laurence := &models.Person{Name: "Laurence Fishburne", Born: models.Year(1961)}
	hugo := &models.Person{Name: "Hugo Weaving", Born: models.Year(1960)}
	lana := &models.Person{Name: "Lana Wachowski", Born: models.Year(1965)}
	lilly := &models.Person{Name: "Lilly Wachowski", Born: models.Year(1967)}
	charlize := &models.Person{Name: "Charlize Theron", Born: models.Year(1975)}
	taylor := &models.Person{Name: "Taylor Hackford", Born: models.Year(1944)}

	return []*models.Movie{
		{
			Title:       "The Matrix",
			Description: "Welcome to the Real World",
			Actors: []*models.Role{
				models.NewRole(keanu, "Neo"),
				models.NewRole(carrie, "Trinity"),
				models.NewRole(laurence, "Morpheus"),
				models.NewRole(hugo, "Agent Smith"),
			},
			Directors: []*models.Person{lana, lilly},
		},
		{
			Title:       "The Matrix Reloaded",
			Description: "Free your mind",
			Actors: []*models.Role{
				models.NewRole(keanu, "Neo"),
				models.NewRole(carrie, "Trinity"),
				models.NewRole(laurence, "Morpheus"),
			},
			Directors: []*models.Person{lana, lilly},
		},
		{
			Title:       "The Devil's Advocate",
			Description: "Evil has its winning ways",
			Actors: []*models.Role{
				models.NewRole(keanu, "Kevin Lomax"),
				models.NewRole(charlize, "Mary Ann Lomax"),
			},
			Directors: []*models.Person{taylor},
		},
	}
}
