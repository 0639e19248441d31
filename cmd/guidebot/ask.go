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
	"io"
	"strings"

	"github.com/homescan/guidebot/pkg/extensions"
	"github.com/homescan/guidebot/pkg/ux"
	"github.com/homescan/guidebot/services/chatbot/datatypes"
	"github.com/homescan/guidebot/services/chatbot/knowledge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Close()

	// one-shot runs never touch the configured database
	cfg.Store.Backend = "memory"
	cfg.Store.Path = ""

	a, err := buildApp(cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if !streamFlag {
		reply, err := a.orch.Send(cmd.Context(), extensions.LocalUserID, question, topicFlag)
		if err != nil {
			return err
		}
		ux.NewPrinter(out).Answer(reply.Turn.Text)
		return nil
	}

	var streamed strings.Builder
	reply, err := a.orch.Stream(cmd.Context(), extensions.LocalUserID, question, topicFlag,
		func(ev datatypes.StreamEvent) error {
			if ev.Type != datatypes.StreamEventDelta {
				return nil
			}
			streamed.WriteString(ev.Content)
			_, err := io.WriteString(out, ev.Content)
			return err
		})
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	// the persisted text is normalized and can differ from the raw deltas
	if reply.Turn.Text != streamed.String() {
		fmt.Fprintln(out)
		ux.NewPrinter(out).Answer(reply.Turn.Text)
	}
	return nil
}

func runPrompts(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Close()

	kb, err := loadKnowledge(cfg.Knowledge)
	if err != nil {
		return err
	}
	printSuggestions(cmd.OutOrStdout(), kb.Suggestions(topicFlag))
	return nil
}

func printSuggestions(w io.Writer, suggestions []knowledge.Suggestion) {
	p := ux.NewPrinter(w)
	if len(suggestions) == 0 {
		p.Muted("No suggested questions.")
		return
	}
	p.Title("추천 질문")
	for _, s := range suggestions {
		p.Bullet(s.Label, s.Section)
	}
}
