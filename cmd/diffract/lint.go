package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/workflow"
)

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	var (
		height int
		width  int
	)
	cmd := &cobra.Command{
		Use:   "lint <workflow.dot>",
		Short: "Validate a workflow and resolve its result shapes without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read workflow: %w", err)
			}
			tree, err := workflow.ParseDOT(string(src), registry())
			if err != nil {
				return err
			}
			tree.SetInputShape(core.Shape{height, width})
			shapes, err := tree.LeafShapes()
			if err != nil {
				return err
			}
			ids := make([]int, 0, len(shapes))
			for id := range shapes {
				ids = append(ids, id)
			}
			sort.Ints(ids)
			fmt.Printf("workflow ok: %d nodes, %d leaves\n", tree.NumNodes(), len(ids))
			for _, id := range ids {
				fmt.Printf("  leaf %d: result shape %s\n", id, shapes[id])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&height, "height", 128, "assumed input frame height")
	cmd.Flags().IntVar(&width, "width", 128, "assumed input frame width")
	return cmd
}

// ─── export ───────────────────────────────────────────────────────────────────

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <workflow.dot>",
		Short: "Parse a workflow and re-export it in canonical DOT form",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read workflow: %w", err)
			}
			tree, err := workflow.ParseDOT(string(src), registry())
			if err != nil {
				return err
			}
			dot, err := workflow.ExportDOT(tree, "workflow")
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Print(dot)
				return nil
			}
			if err := os.WriteFile(out, []byte(dot), 0o644); err != nil {
				return fmt.Errorf("write workflow: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}
