package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tokens.hh/internal/engine"
	"tokens.hh/internal/ledger"
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().String("owner", "", "Balance owner kind: company or designer")
	_ = auditCmd.MarkFlagRequired("owner")
}

var auditCmd = &cobra.Command{
	Use:   "audit ID",
	Short: "Replay a subject's ledger and compare it with its balance",
	Long: `audit walks every ledger entry of one company or designer in order, checks
each before/after snapshot and compares the sum with the balance the API
reports. It exits non-zero when any break is found.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[0], err)
	}
	owner, _ := cmd.Flags().GetString("owner")

	var subject ledger.Subject
	switch ledger.SubjectKind(owner) {
	case ledger.SubjectCompany:
		subject = ledger.CompanySubject(id)
	case ledger.SubjectDesigner:
		subject = ledger.DesignerSubject(id)
	default:
		return fmt.Errorf("owner must be company or designer, got %q", owner)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	st, pool, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	report, err := engine.New(st, engine.WithLogger(logger)).Audit(ctx, subject)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%s: %d ledger breaks", subject, len(report.Breaks))
	}
	return nil
}
