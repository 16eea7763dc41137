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
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/stepflow/services/workflow/recovery"
)

func newRecoverCmd(a *app) *cobra.Command {
	ff := &failureFlags{}
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Classify a failure and run its remediation workflow",
		Example: `  go build ./... 2>&1 | stepflow recover --command "go build ./..."
  stepflow recover --run --command "go test ./..."
  stepflow recover -m "missing go.sum entry for module providing package x"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f, clean, err := a.readFailure(ctx, ff)
			if err != nil {
				return err
			}
			if clean {
				a.printer.Success(strings.Join(f.Command, " ") + " succeeded, nothing to recover")
				return nil
			}

			r, err := a.newRecoverer()
			if err != nil {
				return err
			}

			a.printer.Title("Recovering")
			sum := r.Run(ctx, f)
			a.printer.Box("Diagnosis", classificationFields(a, sum.Classification))
			a.printer.Outcomes(sum.Outcomes, sum.Duration)

			if !sum.Recovered {
				a.printer.ErrorBox(recovery.ManualInterventionMessage, a.printer.Fields(
					[2]string{"run", shortID(sum.RunID)},
					[2]string{"failure", firstLine(f.Message)},
					[2]string{"error", fmt.Sprint(sum.Err)},
				))
				return errNotRecovered
			}
			a.printer.Success(fmt.Sprintf("recovered (%d remediation steps)", sum.Remediations))
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func classificationFields(a *app, c recovery.Classification) string {
	return a.printer.Fields(
		[2]string{"category", string(c.Category)},
		[2]string{"severity", string(c.Severity)},
		[2]string{"fixable", strconv.FormatBool(c.Fixable)},
		[2]string{"summary", c.Summary},
		[2]string{"fingerprint", shortID(c.Fingerprint)},
	)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
