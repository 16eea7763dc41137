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

	"github.com/spf13/cobra"
)

func newClassifyCmd(a *app) *cobra.Command {
	ff := &failureFlags{}
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a failure without running any remediation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, clean, err := a.readFailure(cmd.Context(), ff)
			if err != nil {
				return err
			}
			if clean {
				a.printer.Success("command succeeded, nothing to classify")
				return nil
			}

			c, err := a.newAnalyzer().Analyze(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			}
			a.printer.Box("Diagnosis", classificationFields(a, c))
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the classification as JSON")
	return cmd
}
