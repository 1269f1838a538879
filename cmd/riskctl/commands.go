package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"stealthcompany.com/glycorisk/internal/config"
	"stealthcompany.com/glycorisk/internal/patients"
	"stealthcompany.com/glycorisk/internal/risk"
	"stealthcompany.com/glycorisk/pkg/zerolog_config"
)

type options struct {
	v       *viper.Viper
	nowFlag string
	asJSON  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{v: viper.New()}

	root := &cobra.Command{
		Use:          "riskctl",
		Short:        "Evaluate and rank diabetes patients by clinical risk",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				zerolog.SetGlobalLevel(zerolog_config.ParseLevel(level))
			}
		},
	}

	root.PersistentFlags().StringP("file", "f", "", "patients JSON file (default $PATIENTS_FILE)")
	root.PersistentFlags().StringVar(&opts.nowFlag, "now", "", "evaluation instant, RFC3339 (default current time)")
	root.PersistentFlags().String("log-level", "", "log level for diagnostics on stderr")
	_ = opts.v.BindPFlag("PATIENTS_FILE", root.PersistentFlags().Lookup("file"))

	root.AddCommand(evaluateCmd(opts))
	root.AddCommand(rankCmd(opts))
	root.AddCommand(thresholdsCmd(opts))

	return root
}

func (o *options) now() (time.Time, error) {
	if o.nowFlag == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, o.nowFlag)
	if err != nil {
		return time.Time{}, fmt.Errorf("--now must be RFC3339: %w", err)
	}
	return t.UTC(), nil
}

// setup loads configuration, the engine and the patient file
func (o *options) setup() (*risk.Engine, *patients.FileSource, time.Time, error) {
	cfg, err := config.LoadFrom(o.v)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	engine, err := cfg.NewEngine()
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	if cfg.PatientsFile == "" {
		return nil, nil, time.Time{}, errors.New("no patients file: pass --file or set PATIENTS_FILE")
	}
	now, err := o.now()
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	return engine, patients.NewFileSource(cfg.PatientsFile), now, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func evaluateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate [patient-id]",
		Short: "Print the assessment of one patient, or of every patient in the file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, source, now, err := opts.setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if len(args) == 1 {
				p, err := source.GetPatient(ctx, args[0])
				if err != nil {
					return err
				}
				a, err := engine.Evaluate(p, now)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), a)
			}

			list, err := source.ListPatients(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), engine.EvaluateAll(ctx, list, now))
		},
	}
}

func rankCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print patients ordered by urgency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, source, now, err := opts.setup()
			if err != nil {
				return err
			}
			list, err := source.ListPatients(cmd.Context())
			if err != nil {
				return err
			}
			result := engine.EvaluateAll(cmd.Context(), list, now)
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			return printRanking(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func thresholdsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "thresholds",
		Short: "Validate and print the configured thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(opts.v)
			if err != nil {
				return err
			}
			thresholds, err := cfg.Thresholds()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), thresholds.View())
		},
	}
}

func printRanking(w io.Writer, result risk.BatchResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPATIENT\tNAME\tRISK\tHBA1C\tPANEL DAYS\tVISIT DAYS\tFLAGS")

	for i, a := range result.Ranked {
		hba1c, panelDays := "-", "-"
		if a.Labs.HbA1c != nil {
			hba1c = fmt.Sprintf("%g", *a.Labs.HbA1c)
		}
		if a.Labs.DaysSincePanel != nil {
			panelDays = fmt.Sprint(*a.Labs.DaysSincePanel)
		}
		visitDays := fmt.Sprint(a.Visits.DaysSinceVisit)
		if a.Visits.NeverSeen {
			visitDays += " (never)"
		}

		kinds := make([]string, len(a.Flags))
		for j, f := range a.Flags {
			kinds[j] = fmt.Sprintf("%s:%s", f.Kind, f.Severity)
		}
		flags := strings.Join(kinds, ",")
		if flags == "" {
			flags = "-"
		}

		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, a.PatientID, a.PatientName, a.RiskLevel, hba1c, panelDays, visitDays, flags)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, f := range result.Failures {
		fmt.Fprintf(w, "not evaluated: %s: %s\n", f.PatientID, f.Message)
	}
	return nil
}
