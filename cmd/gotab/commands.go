package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hfi/gotab/internal/mapping"
	"github.com/hfi/gotab/internal/resolver"
)

func newAddCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "add <keyword> <url>",
		Short: "Add or replace a keyword mapping",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open("cli")
			if err != nil {
				return err
			}
			if err := a.manager.Add(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "%s -> %s\n", mapping.NormalizeKeyword(args[0]), strings.TrimSpace(args[1]))
			return nil
		},
	}
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <keyword>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a keyword mapping",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open("cli")
			if err != nil {
				return err
			}
			return a.manager.Delete(cmd.Context(), args[0])
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List keyword mappings",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open("cli")
			if err != nil {
				return err
			}
			entries, err := a.manager.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.stdout, "No keywords yet")
				return nil
			}

			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEYWORD\tURL")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\n", e.Keyword, e.URL)
			}
			return tw.Flush()
		},
	}
}

func newExportCmd(c *cli) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all mappings to a JSON snapshot",
		Long: `Write all mappings to a JSON snapshot. Without -o the snapshot is
saved in the working directory as goTab-mappings-<timestamp>.json.
Use -o - to write to standard output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open("cli")
			if err != nil {
				return err
			}
			snap, err := a.manager.Export(cmd.Context())
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := c.stdout.Write(snap.Data)
				return err
			}
			if output == "" {
				output = snap.Filename
			}
			if err := os.WriteFile(output, snap.Data, 0o600); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			fmt.Fprintf(c.stdout, "Exported %d mappings to %s\n", snap.Count, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file, or - for stdout")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge mappings from a JSON snapshot",
		Long: `Merge mappings from a JSON snapshot into the stored set. Imported
entries replace existing ones with the same keyword. The whole file is
rejected if any entry is invalid. Use - to read standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args[0], c.stdin)
			if err != nil {
				return err
			}
			a, err := c.open("cli")
			if err != nil {
				return err
			}
			count, err := a.manager.Import(cmd.Context(), raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "Imported %d mappings\n", count)
			return nil
		},
	}
}

func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(name) //#nosec G304 -- file named by the operator
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return raw, nil
}

func newResolveCmd(c *cli) *cobra.Command {
	var newView bool

	cmd := &cobra.Command{
		Use:   "resolve <text>...",
		Short: "Show where the address bar would navigate for text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open("cli")
			if err != nil {
				return err
			}

			disposition := resolver.CurrentView
			if newView {
				disposition = resolver.NewView
			}

			nav := resolver.NavigatorFunc(func(_ context.Context, rc resolver.Command) error {
				_, err := fmt.Fprintf(c.stdout, "%s\t%s\n", rc.Action, rc.URL)
				return err
			})
			trigger := resolver.NewTrigger(a.resolver, nav, a.manager)
			if _, err := trigger.Enter(cmd.Context(), strings.Join(args, " "), disposition); err != nil {
				a.manager.ResolveFailed(err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&newView, "new", "n", false, "open in a new tab instead of the current one")
	return cmd
}
