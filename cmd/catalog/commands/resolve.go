package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/catalog-client/internal/client"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// Resolution is the output of the resolve commands.
type Resolution struct {
	Category  catalog.Category `json:"category"            yaml:"category"`
	Name      string           `json:"name"                yaml:"name"`
	ID        string           `json:"id"                  yaml:"id"`
	Attribute string           `json:"attribute,omitempty" yaml:"attribute,omitempty"`
}

// NewResolveCommand creates the resolve command group.
func NewResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Translate between names and ids",
		Long: `Translate human-readable names to internal ids and back.

Categories: ` + categoryList(),
	}

	cmd.AddCommand(newResolveIDCommand())
	cmd.AddCommand(newResolveNameCommand())
	cmd.AddCommand(newResolveAttributeCommand())
	cmd.AddCommand(newResolveListCommand())

	return cmd
}

func newResolveIDCommand() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "id CATEGORY NAME",
		Short: "Resolve a name to its id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := catalog.ParseCategory(args[0])
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				lookup := c.Cache().GetIDForName
				if wait {
					lookup = c.Cache().WaitForName
				}

				id, err := lookup(ctx, category, args[1])
				if err != nil {
					return err
				}

				return renderResolution(cmd.OutOrStdout(), Resolution{Category: category, Name: args[1], ID: id}, id)
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "keep reloading until the name appears")

	return cmd
}

func newResolveNameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "name CATEGORY ID",
		Short: "Resolve an id to its name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := catalog.ParseCategory(args[0])
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				name, err := c.Cache().GetNameForID(ctx, category, args[1])
				if err != nil {
					return err
				}

				return renderResolution(cmd.OutOrStdout(), Resolution{Category: category, Name: name, ID: args[1]}, name)
			})
		},
	}
}

func newResolveAttributeCommand() *cobra.Command {
	var byID bool

	cmd := &cobra.Command{
		Use:   "attribute SET ATTRIBUTE",
		Short: "Resolve a custom metadata attribute",
		Long: `Resolve a custom metadata attribute name to its id.

With --by-id, SET and ATTRIBUTE are ids and the attribute name is printed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				cache := c.Cache()

				if byID {
					name, err := cache.GetAttributeName(ctx, catalog.CategoryCustomMetadata, args[0], args[1])
					if err != nil {
						return err
					}

					return renderResolution(cmd.OutOrStdout(), Resolution{
						Category:  catalog.CategoryCustomMetadata,
						ID:        args[0],
						Attribute: name,
					}, name)
				}

				id, err := cache.GetAttributeID(ctx, catalog.CategoryCustomMetadata, args[0], args[1])
				if err != nil {
					return err
				}

				return renderResolution(cmd.OutOrStdout(), Resolution{
					Category:  catalog.CategoryCustomMetadata,
					Name:      args[0],
					ID:        id,
					Attribute: args[1],
				}, id)
			})
		},
	}

	cmd.Flags().BoolVar(&byID, "by-id", false, "resolve ids to the attribute name")

	return cmd
}

func newResolveListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list CATEGORY",
		Short: "List every cached entry of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := catalog.ParseCategory(args[0])
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				entries, err := c.Cache().Entries(ctx, category)
				if err != nil {
					return err
				}

				sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

				return render(cmd.OutOrStdout(), entries, func(w io.Writer) error {
					if len(entries) == 0 {
						_, _ = fmt.Fprintf(w, "No %s entries found\n", category)

						return nil
					}

					rows := make([][]string, 0, len(entries))
					for _, entry := range entries {
						rows = append(rows, []string{entry.Name, entry.ID, fmt.Sprint(len(entry.Attributes))})
					}

					return renderTable(w, []string{"Name", "ID", "Attributes"}, rows)
				})
			})
		},
	}
}

// renderResolution prints the bare value for table output so the command
// composes in shell pipelines.
func renderResolution(w io.Writer, resolution Resolution, value string) error {
	return render(w, resolution, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, value)

		return err
	})
}

func categoryList() string {
	categories := catalog.AllCategories()

	names := make([]string, 0, len(categories))
	for _, category := range categories {
		names = append(names, category.String())
	}

	return strings.Join(names, ", ")
}
