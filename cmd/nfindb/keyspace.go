package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfinity/nfindb/internal/ui"
)

var namespacesCmd = &cobra.Command{
	Use:     "namespaces",
	Short:   "List namespaces that hold documents",
	GroupID: "keyspace",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := docStore.ListNamespaces(cmd.Context())
		if err != nil {
			return err
		}
		return printStrings(cmd.OutOrStdout(), names)
	},
}

var typesCmd = &cobra.Command{
	Use:     "types <namespace>",
	Short:   "List document types in a namespace",
	GroupID: "keyspace",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		types, err := docStore.ListTypes(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printStrings(cmd.OutOrStdout(), types)
	},
}

// dropResult is the --json form of a drop outcome.
type dropResult struct {
	Namespace string `json:"namespace"`
	Type      string `json:"type,omitempty"`
	Dropped   bool   `json:"dropped"`
}

func requireYes(cmd *cobra.Command, what string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("refusing to drop %s without --yes", what)
	}
	return nil
}

func printDrop(cmd *cobra.Command, res dropResult, what string) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	if res.Dropped {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.RenderWarn("Dropped"), what)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Nothing to drop in %s\n", what)
	}
	return nil
}

var dropNamespaceCmd = &cobra.Command{
	Use:     "drop-namespace <namespace>",
	Short:   "Delete every document in a namespace",
	GroupID: "keyspace",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		what := fmt.Sprintf("namespace %q", args[0])
		if err := requireYes(cmd, what); err != nil {
			return err
		}
		dropped, err := docStore.DropNamespace(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printDrop(cmd, dropResult{Namespace: args[0], Dropped: dropped}, what)
	},
}

var dropTypeCmd = &cobra.Command{
	Use:     "drop-type <namespace> <type>",
	Short:   "Delete every document of a type",
	GroupID: "keyspace",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		what := fmt.Sprintf("type %q in namespace %q", args[1], args[0])
		if err := requireYes(cmd, what); err != nil {
			return err
		}
		dropped, err := docStore.DropType(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printDrop(cmd, dropResult{Namespace: args[0], Type: args[1], Dropped: dropped}, what)
	},
}

func init() {
	dropNamespaceCmd.Flags().Bool("yes", false, "confirm the drop")
	dropTypeCmd.Flags().Bool("yes", false, "confirm the drop")
}
