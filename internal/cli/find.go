package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/go-neogm"
	"github.com/saulfrancisco-ruizacevedo/go-neogm/examples/models"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// NewMovieCommand creates the movie command.
func NewMovieCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "movie <title>",
		Short: "Show a movie with its cast and directors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				repo, err := neogm.RepositoryFor[models.Movie](s.manager)
				if err != nil {
					return err
				}
				movie, err := repo.FindByProperty(ctx, "title", args[0])
				if errors.Is(err, neogm.ErrNotFound) {
					return fmt.Errorf("no movie titled %q", args[0])
				}
				if err != nil {
					return err
				}
				printMovie(cmd.OutOrStdout(), movie)
				return nil
			})
		},
	}
}

// NewPersonCommand creates the person command.
func NewPersonCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "person <name>",
		Short: "Look people up by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				found, err := s.manager.FindBy(ctx, "findPersonByName", args[0])
				if err != nil {
					return err
				}
				if len(found) == 0 {
					return fmt.Errorf("no person named %q", args[0])
				}
				for _, v := range found {
					p := v.(*models.Person)
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p.ID, p.Name, born(p))
				}
				return nil
			})
		},
	}
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(opts *RootOptions) *cobra.Command {
	var relType string
	cmd := &cobra.Command{
		Use:   "graph <title>",
		Short: "Print a movie and the people related to it as JSON nodes and edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				qb := gocypher.NewQueryBuilder().
					Match(gocypher.N("m", "Movie").WithProperties(map[string]interface{}{"title": args[0]})).
					Match(
						gocypher.N("p", "Person"),
						gocypher.R("r", relType).To(),
						gocypher.NRef("m"),
					).
					Return("m", "r", "p")
				graph, err := s.manager.FindGraph(ctx, qb)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(graph)
			})
		},
	}
	cmd.Flags().StringVar(&relType, "rel", "ACTED_IN", "relationship type from people to the movie")
	return cmd
}

// NewCountCommand creates the count command.
func NewCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count stored movies and people",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				movies, err := neogm.RepositoryFor[models.Movie](s.manager)
				if err != nil {
					return err
				}
				people, err := neogm.RepositoryFor[models.Person](s.manager)
				if err != nil {
					return err
				}
				nMovies, err := movies.Count(ctx)
				if err != nil {
					return err
				}
				nPeople, err := people.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "movies: %d\npeople: %d\n", nMovies, nPeople)
				return nil
			})
		},
	}
}

func printMovie(w io.Writer, m *models.Movie) {
	fmt.Fprintf(w, "%s\n  %s\n", m.Title, m.Description)
	if len(m.Directors) > 0 {
		names := make([]string, len(m.Directors))
		for i, d := range m.Directors {
			names[i] = d.Name
		}
		fmt.Fprintf(w, "  directed by %s\n", strings.Join(names, ", "))
	}
	for _, r := range m.Actors {
		fmt.Fprintf(w, "  %-22s as %s\n", r.Person.Name, strings.Join(r.Roles, ", "))
	}
}

func born(p *models.Person) string {
	if p.Born == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *p.Born)
}
