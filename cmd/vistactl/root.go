package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openvista/vistalink/internal/aggregate"
	"github.com/openvista/vistalink/internal/registry"
	"github.com/openvista/vistalink/internal/service"
)

type rootFlags struct {
	config  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "vistactl",
		Short:         "vistactl: query patient records across clinical sites",
		Long:          "vistactl fans clinical queries out to every configured site, merges the answers into one record, and flags cross-site disagreements.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.config, "config", envOr("VISTALINK_CONFIG", "sites.toml"), "site registry file")
	rootCmd.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "debug logging")

	rootCmd.AddCommand(
		newRecordCmd(flags),
		newSearchCmd(flags),
		newSitesCmd(flags),
	)
	return rootCmd
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// wire builds the full stack from the registry file. The caller owns Close.
func wire(flags *rootFlags) (*service.Service, error) {
	level := zerolog.WarnLevel
	if flags.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	return service.New(flags.config, registry.EnvSecrets{Prefix: "VISTALINK_CRED_"}, log)
}

func newRecordCmd(flags *rootFlags) *cobra.Command {
	var (
		domains string
		sites   string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "record <icn>",
		Short: "Fetch and merge one patient's record across sites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := wire(flags)
			if err != nil {
				return err
			}
			defer svc.Close()

			rec, err := svc.Aggregator.Aggregate(cmd.Context(), args[0], splitList(domains), pickSites(svc, sites))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, rec)
			}
			printRecord(cmd, rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&domains, "domains", "", "comma-separated domains (default: all)")
	cmd.Flags().StringVar(&sites, "sites", "", "comma-separated site codes (default: all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the raw record as JSON")
	return cmd
}

func newSearchCmd(flags *rootFlags) *cobra.Command {
	var (
		sites  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Find patient candidates by partial name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := wire(flags)
			if err != nil {
				return err
			}
			defer svc.Close()

			hits, errs := svc.Aggregator.Search(cmd.Context(), args[0], pickSites(svc, sites))
			if asJSON {
				return printJSON(cmd, map[string]any{"candidates": hits, "errors": errs})
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SITE\tLOCAL ID\tNAME")
			for _, h := range hits {
				fmt.Fprintf(w, "%s\t%s\t%s\n", h.Site, h.LocalID, h.Name)
			}
			w.Flush()
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "site %s: %s\n", e.Site, e.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sites, "sites", "", "comma-separated site codes (default: all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit results as JSON")
	return cmd
}

func newSitesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List configured sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(flags.config)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tADDRESS\tPOOL")
			for _, s := range reg.Sites {
				marker := ""
				if s.Code == reg.PrimarySite {
					marker = " (primary)"
				}
				fmt.Fprintf(w, "%s%s\t%s\t%s\t%d\n", s.Code, marker, s.Name, s.Addr(), s.PoolSize)
			}
			return w.Flush()
		},
	}
}

func pickSites(svc *service.Service, raw string) []string {
	if picked := splitList(raw); len(picked) > 0 {
		return picked
	}
	return svc.Invoker.Sites()
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecord(cmd *cobra.Command, rec *aggregate.Record) {
	out := cmd.OutOrStdout()
	d := rec.Demographics
	fmt.Fprintf(out, "Patient %s\n", rec.GlobalID)
	if d.Name != "" {
		fmt.Fprintf(out, "  %s  %s  DOB %s  (site %s)\n", d.Name, d.Sex, d.DOB, d.Site)
	}
	fmt.Fprintf(out, "  sites: %s\n", strings.Join(sortedKeys(rec.Sites), ", "))

	for _, name := range aggregate.DomainNames() {
		entries, ok := rec.Domains[name]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "\n%s (%d)\n", name, len(entries))
		for _, e := range entries {
			fmt.Fprintf(out, "  - %s  [%s]\n", summarizeEntry(e), strings.Join(e.Sources, ","))
		}
	}

	if len(rec.Conflicts) > 0 {
		fmt.Fprintf(out, "\nconflicts (%d)\n", len(rec.Conflicts))
		for _, c := range rec.Conflicts {
			fmt.Fprintf(out, "  - %s %s %s: %v\n", c.Domain, c.Key, c.Field, c.Values)
		}
	}
	if len(rec.Errors) > 0 {
		fmt.Fprintf(out, "\nerrors (%d)\n", len(rec.Errors))
		for _, e := range rec.Errors {
			fmt.Fprintf(out, "  - %s at %s: %s (%s)\n", e.Domain, e.Site, e.Message, e.Kind)
		}
	}
}

func summarizeEntry(e aggregate.Entry) string {
	keys := sortedKeys(e.Fields)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := e.Fields[k]; v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
