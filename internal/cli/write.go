package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/go-neogm"
	"github.com/saulfrancisco-ruizacevedo/go-neogm/examples/models"
)

const (
	knowsStatement = `MERGE (p1:Person {name: $person1_name})
MERGE (p2:Person {name: $person2_name})
MERGE (p1)-[:KNOWS]->(p2)
RETURN p1.name AS p1, p2.name AS p2`

	acquaintancesStatement = `MATCH (p:Person)-[:KNOWS]->(other:Person)
WHERE p.name = $person_name
RETURN other.name AS name`
)

// NewKnowsCommand creates the knows command, which writes and reads through
// the executor directly instead of the mapper.
func NewKnowsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "knows <person> <other>",
		Short: "Record that one person knows another and list who they know",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				executor := s.manager.Executor()
				stmt := neogm.Raw(knowsStatement, map[string]any{
					"person1_name": args[0],
					"person2_name": args[1],
				})
				var created *neogm.Record
				err := executor.Write(ctx, func(ctx context.Context, tx *neogm.Tx) error {
					res, err := tx.Run(ctx, stmt)
					if err != nil {
						return err
					}
					created, err = res.Single(ctx)
					return err
				})
				if err != nil {
					return err
				}
				p1, _ := created.Get("p1")
				p2, _ := created.Get("p2")
				fmt.Fprintf(cmd.OutOrStdout(), "created: %v knows %v\n", p1, p2)

				rows, err := executor.ReadAll(ctx, neogm.Raw(acquaintancesStatement, map[string]any{"person_name": args[0]}))
				if err != nil {
					return err
				}
				for _, row := range rows {
					name, _ := row.Get("name")
					fmt.Fprintf(cmd.OutOrStdout(), "  %v\n", name)
				}
				return nil
			})
		},
	}
}

// NewWipeCommand creates the wipe command.
func NewWipeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wipe",
		Short: "Delete every movie and person",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				for _, entity := range []any{(*models.Movie)(nil), (*models.Person)(nil)} {
					if err := s.manager.DeleteAll(ctx, entity); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "wiped")
				return nil
			})
		},
	}
}
