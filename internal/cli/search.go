package cli

import (
	"encoding/json"

	"github.com/panoptikon-go/panoptikon/internal/pql"
	"github.com/panoptikon-go/panoptikon/internal/search"
	"github.com/spf13/cobra"
)

var (
	searchPathPrefixes []string
	searchMimePrefixes []string
	searchText         string
	searchTags         []string
	searchPage         int
	searchPageSize     int
	searchOrderBy      string
	searchOrderDesc    bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a PQL search against the index",
	Long: `Builds a SearchQuery from the given flags, ANDing every filter
present, and runs it through the search facade (C10): decode, compile,
paginate, count.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var children []pql.Node
		if len(searchPathPrefixes) > 0 {
			children = append(children, &pql.PathFilter{Prefixes: searchPathPrefixes})
		}
		if len(searchMimePrefixes) > 0 {
			children = append(children, &pql.MimeFilter{Prefixes: searchMimePrefixes})
		}
		if searchText != "" {
			children = append(children, &pql.FTSFilter{Text: searchText})
		}
		if len(searchTags) > 0 {
			children = append(children, &pql.TagMatchFilter{Tags: searchTags})
		}

		var query pql.Node
		if len(children) == 1 {
			query = children[0]
		} else if len(children) > 1 {
			query = &pql.And{Children: children}
		}

		direction := pql.OrderDefault
		if searchOrderDesc {
			direction = pql.OrderDesc
		} else if searchOrderBy != "" {
			direction = pql.OrderAsc
		}
		orderArgs := []pql.OrderArgs{{OrderBy: searchOrderBy, Order: direction}}

		q := pql.SearchQuery{
			Query:     query,
			OrderArgs: orderArgs,
			Page:      searchPage,
			PageSize:  searchPageSize,
		}

		facade := search.NewFacade(cfg.ToStorePaths())
		result, err := facade.Search(cmd.Context(), q)
		if err != nil {
			return err
		}

		return printJSON(cmd, result)
	},
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchPathPrefixes, "path", nil, "match files whose path starts with one of these prefixes")
	searchCmd.Flags().StringSliceVar(&searchMimePrefixes, "mime", nil, "match files whose MIME type starts with one of these prefixes")
	searchCmd.Flags().StringVar(&searchText, "text", "", "full-text search query (extracted_text FTS5)")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "match items tagged with any of these tags")
	searchCmd.Flags().IntVar(&searchPage, "page", 0, "zero-indexed result page")
	searchCmd.Flags().IntVar(&searchPageSize, "page-size", 100, "results per page")
	searchCmd.Flags().StringVar(&searchOrderBy, "order-by", "", "column to order by (default: last_modified)")
	searchCmd.Flags().BoolVar(&searchOrderDesc, "desc", false, "sort descending")

	rootCmd.AddCommand(searchCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
