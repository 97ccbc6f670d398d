package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/outline-studio/engine/internal/graph"
	"github.com/outline-studio/engine/internal/repository"
	"github.com/outline-studio/engine/internal/services"
	"github.com/outline-studio/engine/pkg/config"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

// errUnhealthy makes the process exit non-zero after an audit with findings.
var errUnhealthy = errors.New("audit found integrity problems")

type app struct {
	store repository.Store
	svc   *services.Services
}

// openApp is replaced in tests.
var openApp = func(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if _, err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	store, _, err := repository.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &app{store: store, svc: services.New(store, services.Options{MaxDepth: cfg.ProjectionMaxDepth})}, nil
}

func newRootCmd() *cobra.Command {
	var a *app
	root := &cobra.Command{
		Use:           "outlinectl",
		Short:         "Inspect and audit outline trees",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = openApp(cmd.Context())
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			return a.store.Close()
		},
	}

	treesCmd := &cobra.Command{
		Use:   "trees",
		Short: "List trees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			trees, err := a.svc.Trees.ListTrees(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range trees {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.ID, t.Name)
			}
			return nil
		},
	}

	var view, from string
	projectCmd := &cobra.Command{
		Use:   "project <tree-id>",
		Short: "Print a tree as an indented outline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			treeID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tree id %q", args[0])
			}
			dir, ok := graph.ParseDirection(view)
			if !ok {
				return fmt.Errorf("--view must be normal or reverse")
			}
			var seq iter.Seq2[graph.Row, error]
			switch {
			case from != "":
				nodeID, err := uuid.Parse(from)
				if err != nil {
					return fmt.Errorf("invalid node id %q", from)
				}
				seq = a.svc.Projection.ProjectFrom(cmd.Context(), treeID, nodeID, dir)
			case dir == graph.Reverse:
				seq = a.svc.Projection.ProjectReverse(cmd.Context(), treeID)
			default:
				seq = a.svc.Projection.ProjectNormal(cmd.Context(), treeID)
			}
			return writeOutline(cmd.OutOrStdout(), seq)
		},
	}
	projectCmd.Flags().StringVar(&view, "view", "normal", "normal or reverse")
	projectCmd.Flags().StringVar(&from, "from", "", "start the walk at this node id")

	auditCmd := &cobra.Command{
		Use:   "audit [tree-id]",
		Short: "Check one tree, or every tree, for integrity problems",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reports []*services.AuditReport
			if len(args) == 1 {
				treeID, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid tree id %q", args[0])
				}
				r, err := a.svc.Audit.Audit(cmd.Context(), treeID)
				if err != nil && !appErr.IsCode(err, appErr.CodeIntegrity) {
					return err
				}
				reports = append(reports, r)
			} else {
				var err error
				if reports, err = a.svc.Audit.AuditAll(cmd.Context(), 4); err != nil {
					return err
				}
			}
			return writeAudit(cmd.OutOrStdout(), reports)
		},
	}

	root.AddCommand(treesCmd, projectCmd, auditCmd)
	return root
}

// writeOutline prints one line per row, indented two spaces per level.
// Nodes with more than one parent are marked with "+".
func writeOutline(w io.Writer, seq iter.Seq2[graph.Row, error]) error {
	for row, err := range seq {
		if err != nil {
			return err
		}
		mark := ""
		if row.HasMultipleParents {
			mark = " +"
		}
		if _, err := fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", row.Depth), row.Title, mark); err != nil {
			return err
		}
	}
	return nil
}

func writeAudit(w io.Writer, reports []*services.AuditReport) error {
	unhealthy := 0
	for _, r := range reports {
		status := "ok"
		if !r.Healthy() {
			status = "FAIL"
			unhealthy++
		}
		fmt.Fprintf(w, "%s\t%s\tnodes=%d relations=%d\n", status, r.TreeID, r.Nodes, r.Relations)
		for _, an := range r.Anomalies {
			fmt.Fprintf(w, "\t%s %s -> %s\n", an.Kind, an.Edge.Parent, an.Edge.Child)
		}
		if len(r.Cycle) > 0 {
			ids := make([]string, len(r.Cycle))
			for i, id := range r.Cycle {
				ids[i] = id.String()
			}
			fmt.Fprintf(w, "\tcycle %s\n", strings.Join(ids, " -> "))
		}
	}
	if unhealthy > 0 {
		return errUnhealthy
	}
	return nil
}
