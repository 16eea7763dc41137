// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/stepflow/pkg/ux"
	"github.com/AleutianAI/stepflow/services/workflow/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past recovery runs",
	}
	cmd.AddCommand(newHistoryListCmd(a), newHistoryShowCmd(a))
	return cmd
}

func newHistoryListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recovery runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return errHistoryDisabled
			}
			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				a.printer.Info("no recovery runs recorded")
				return nil
			}
			for _, r := range records {
				a.printer.Info(historyLine(a.printer, r))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show, 0 for all")
	return cmd
}

func historyLine(p *ux.Printer, r history.Record) string {
	result := "recovered"
	if !r.Recovered {
		result = "failed"
	}
	if p.Mode() == ux.ModeMachine {
		return strings.Join([]string{
			r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.Category, result, r.Duration.String(),
		}, "\t")
	}
	return fmt.Sprintf("%s  %s  %-10s  %-9s  %s",
		shortID(r.ID), r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Category, result, firstLine(r.Message))
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recovery run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return errHistoryDisabled
			}
			r, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}

			a.printer.Box("Run "+r.ID, a.printer.Fields(
				[2]string{"started", r.StartedAt.Local().Format(time.RFC3339)},
				[2]string{"duration", r.Duration.String()},
				[2]string{"category", r.Category},
				[2]string{"severity", r.Severity},
				[2]string{"recovered", fmt.Sprint(r.Recovered)},
				[2]string{"failure", firstLine(r.Message)},
			))
			for _, s := range r.Steps {
				line := s.Status + "\t" + s.ID
				switch {
				case s.Error != "":
					line += "\t" + s.Error
				case len(s.BlockedBy) > 0:
					line += "\tblocked by " + strings.Join(s.BlockedBy, ", ")
				}
				a.printer.Info(line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")
	return cmd
}
