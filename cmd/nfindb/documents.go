package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nfinity/nfindb/internal/idgen"
	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/store"
)

var putCmd = &cobra.Command{
	Use:   "put <namespace> <type> [key] <json>",
	Short: "Store a document, replacing any existing one under the same key",
	Long: `Store a document. When the key is omitted a random one is generated.
With --stdin the document is read from standard input and the last
positional argument, if any, is the key.`,
	GroupID: "documents",
	Args:    cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromStdin, _ := cmd.Flags().GetBool("stdin")
		prefix, _ := cmd.Flags().GetString("key-prefix")

		ns, typ := args[0], args[1]
		var key, body string
		switch {
		case fromStdin && len(args) <= 3:
			if len(args) == 3 {
				key = args[2]
			}
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			body = string(data)
		case fromStdin:
			return errors.New("too many arguments with --stdin")
		case len(args) == 3:
			body = args[2]
		case len(args) == 4:
			key, body = args[2], args[3]
		default:
			return errors.New("missing JSON document (pass it as an argument or use --stdin)")
		}

		doc, err := model.Decode(strings.TrimSpace(body))
		if err != nil {
			return fmt.Errorf("invalid JSON document: %w", err)
		}

		if key == "" {
			key, err = idgen.NewKeyWithPrefix(prefix)
			if err != nil {
				return err
			}
		}

		if err := docStore.Put(cmd.Context(), ns, typ, key, doc); err != nil {
			return err
		}

		ref := model.Ref{Namespace: ns, Type: typ, Key: key}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), ref)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", ref)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:     "get <namespace> <type> <key>",
	Short:   "Print a document",
	GroupID: "documents",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := docStore.Get(cmd.Context(), args[0], args[1], args[2])
		if store.IsNotFound(err) {
			return fmt.Errorf("%s not found", model.Ref{Namespace: args[0], Type: args[1], Key: args[2]})
		}
		if err != nil {
			return err
		}
		return printDocument(cmd.OutOrStdout(), doc)
	},
}

// deleteResult is the --json form of one delete outcome.
type deleteResult struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

var deleteCmd = &cobra.Command{
	Use:     "delete <namespace> <type> <key>...",
	Short:   "Delete one or more documents",
	GroupID: "documents",
	Args:    cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, typ := args[0], args[1]
		out := cmd.OutOrStdout()

		var results []deleteResult
		for _, key := range args[2:] {
			deleted, err := docStore.Delete(cmd.Context(), ns, typ, key)
			if err != nil {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
			results = append(results, deleteResult{Key: key, Deleted: deleted})
			if jsonOutput {
				continue
			}
			ref := model.Ref{Namespace: ns, Type: typ, Key: key}
			if deleted {
				fmt.Fprintf(out, "Deleted %s\n", ref)
			} else {
				fmt.Fprintf(out, "No document %s\n", ref)
			}
		}
		if jsonOutput {
			return printJSON(out, results)
		}
		return nil
	},
}

// listResult is the --json form of a listing.
type listResult struct {
	Items []model.Item `json:"items"`
	Total int          `json:"total"`
}

var listCmd = &cobra.Command{
	Use:     "list <namespace> <type>",
	Short:   "List documents of a type in creation order",
	GroupID: "documents",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := model.DefaultListOptions()
		opts.Offset, _ = cmd.Flags().GetInt("offset")
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		desc, _ := cmd.Flags().GetBool("desc")
		opts.Ascending = !desc

		items, err := docStore.List(cmd.Context(), args[0], args[1], opts)
		if err != nil {
			return err
		}
		total, err := docStore.Count(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), listResult{Items: items, Total: total})
		}
		return printItemsTable(cmd.OutOrStdout(), items, total)
	},
}

func init() {
	putCmd.Flags().Bool("stdin", false, "read the document from standard input")
	putCmd.Flags().String("key-prefix", "", "prefix for generated keys")

	defaults := model.DefaultListOptions()
	listCmd.Flags().Int("offset", defaults.Offset, "number of documents to skip")
	listCmd.Flags().Int("limit", defaults.Limit, "maximum number of documents to return")
	listCmd.Flags().Bool("desc", false, "newest first")
}
