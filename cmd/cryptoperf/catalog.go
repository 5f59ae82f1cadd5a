package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
)

var (
	algorithmsFamily   string
	algorithmsCategory string
	algorithmsJSON     bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the algorithm catalog",
	Long: `Upsert the built-in descriptors (unless catalog.seed_defaults is false)
and every descriptor declared under catalog.algorithms. Descriptors already
referenced by test records are never rewritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			summary, err := a.seed(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"created %d, updated %d, unchanged %d, skipped %d\n",
				summary.Created, summary.Updated, summary.Unchanged, summary.Skipped)

			return nil
		})
	},
}

var algorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "List catalog algorithms",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.ensureSeeded(cmd.Context()); err != nil {
				return err
			}

			descriptors, err := a.catalog.List(cmd.Context(), catalog.Filter{
				Family:   catalog.Family(algorithmsFamily),
				Category: catalog.Category(algorithmsCategory),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if algorithmsJSON {
				return printJSON(out, descriptors)
			}

			rows := make([][]string, 0, len(descriptors))
			for _, d := range descriptors {
				rows = append(rows, []string{
					d.Identity,
					string(d.Family),
					string(d.Category),
					strconv.Itoa(d.KeySize),
					yesNo(d.QuantumSafe),
					d.Provider,
					d.Status,
					operationList(d.SupportedOperations()),
				})
			}

			fmt.Fprintln(out, renderTable(
				[]string{"Identity", "Family", "Category", "Key Size",
					"Quantum Safe", "Provider", "Status", "Operations"},
				rows,
			))

			return nil
		})
	},
}

var algorithmsCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Count catalog algorithms by family and category",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.ensureSeeded(cmd.Context()); err != nil {
				return err
			}

			descriptors, err := a.catalog.List(cmd.Context(), catalog.Filter{})
			if err != nil {
				return err
			}

			sum := catalog.Summarize(descriptors)
			out := cmd.OutOrStdout()

			if algorithmsJSON {
				return printJSON(out, sum)
			}

			fmt.Fprintln(out, renderTable(
				[]string{"Group", "Algorithms"}, summaryRows(sum),
			))

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(seedCmd, algorithmsCmd)
	algorithmsCmd.AddCommand(algorithmsCategoriesCmd)

	algorithmsCmd.Flags().StringVar(&algorithmsFamily, "family", "",
		"filter by family (classical, post-quantum)")
	algorithmsCmd.Flags().StringVar(&algorithmsCategory, "category", "",
		"filter by category (key-exchange, signature, symmetric-cipher)")
	algorithmsCmd.PersistentFlags().BoolVar(&algorithmsJSON, "json", false,
		"print as JSON")
}

func operationList(ops []catalog.Operation) string {
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, string(op))
	}

	return strings.Join(names, ", ")
}

// summaryRows lists family counts, then categories by name, then the total.
func summaryRows(sum catalog.Summary) [][]string {
	rows := [][]string{
		{string(catalog.FamilyClassical), strconv.Itoa(sum.Classical)},
		{string(catalog.FamilyPostQuantum), strconv.Itoa(sum.PostQuantum)},
	}

	categories := make([]string, 0, len(sum.Categories))
	for c := range sum.Categories {
		categories = append(categories, string(c))
	}

	sort.Strings(categories)

	for _, c := range categories {
		rows = append(rows, []string{c, strconv.Itoa(sum.Categories[catalog.Category(c)])})
	}

	return append(rows, []string{"total", strconv.Itoa(sum.Total)})
}
