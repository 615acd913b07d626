package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/sems-monitoring/internal/message"
	"github.com/example/sems-monitoring/internal/status"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var catalogPath string

	root := &cobra.Command{
		Use:           "semsctl",
		Short:         "Inspect SEMS device fields and preview notifications",
		SilenceUsage:  true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&catalogPath, "catalog", "", "message catalog YAML (defaults to the built-in catalog)")

	root.AddCommand(newNormalizeCmd(), newPreviewCmd(&catalogPath))
	return root
}

func newNormalizeCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "normalize <value>",
		Short: "Show how a stored status value is read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := args[0]
			switch kind {
			case "status":
				fmt.Fprintln(cmd.OutOrStdout(), status.NormalizeStatus(v))
			case "flag":
				fmt.Fprintln(cmd.OutOrStdout(), status.NormalizeBoolFlag(v))
			case "payment":
				fmt.Fprintln(cmd.OutOrStdout(), status.NormalizePayment(v))
			default:
				return fmt.Errorf("unknown kind %q: want status, flag or payment", kind)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "status", "field kind: status, flag or payment")
	return cmd
}

func newPreviewCmd(catalogPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render a notification with the template backend",
	}

	var alert message.AlertFacts
	var alertType, alertChannel string
	alertCmd := &cobra.Command{
		Use:   "alert",
		Short: "Preview an alert message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, err := message.ParseChannel(alertChannel)
			if err != nil {
				return err
			}
			alert.AlertType = message.AlertType(alertType)
			alert.Channel = ch
			engine, err := templateEngine(*catalogPath)
			if err != nil {
				return err
			}
			msg, err := engine.GenerateAlert(cmd.Context(), alert)
			if err != nil {
				return err
			}
			return printMessage(cmd.OutOrStdout(), msg)
		},
	}
	alertCmd.Flags().StringVar(&alert.CustomerName, "name", "", "customer name")
	alertCmd.Flags().StringVar(&alert.MeterID, "meter", "", "meter id")
	alertCmd.Flags().StringVar(&alertType, "type", string(message.AlertTampering), "alert type")
	alertCmd.Flags().StringVar(&alertChannel, "channel", "Email", "SMS or Email")
	alertCmd.Flags().StringVar(&alert.OutageDetails, "details", "", "outage details for scheduled outages")

	var bill message.BillingFacts
	var billChannel string
	billingCmd := &cobra.Command{
		Use:   "billing",
		Short: "Preview a billing message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, err := message.ParseChannel(billChannel)
			if err != nil {
				return err
			}
			bill.Channel = ch
			engine, err := templateEngine(*catalogPath)
			if err != nil {
				return err
			}
			msg, err := engine.GenerateBilling(cmd.Context(), bill)
			if err != nil {
				return err
			}
			return printMessage(cmd.OutOrStdout(), msg)
		},
	}
	billingCmd.Flags().StringVar(&bill.CustomerName, "name", "", "customer name")
	billingCmd.Flags().StringVar(&bill.MeterID, "meter", "", "meter id")
	billingCmd.Flags().StringVar(&bill.AmountDue, "amount", "", "amount due, e.g. 1250.00")
	billingCmd.Flags().StringVar(&bill.DueDate, "due", "", "due date")
	billingCmd.Flags().StringVar(&bill.Usage, "usage", "", "usage, e.g. 100.00 kWh")
	billingCmd.Flags().StringVar(&bill.StatementLink, "link", "", "statement URL")
	billingCmd.Flags().StringVar(&billChannel, "channel", "Email", "SMS or Email")

	cmd.AddCommand(alertCmd, billingCmd)
	return cmd
}

func templateEngine(catalogPath string) (*message.Engine, error) {
	catalog := message.DefaultCatalog()
	if catalogPath != "" {
		c, err := message.LoadCatalog(catalogPath)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	backend, err := message.NewTemplateBackend(catalog)
	if err != nil {
		return nil, err
	}
	return message.NewEngine(backend, catalog, zerolog.Nop()), nil
}

func printMessage(w io.Writer, msg message.Message) error {
	if msg.Subject != "" {
		if _, err := fmt.Fprintf(w, "Subject: %s\n\n", msg.Subject); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, msg.Body)
	return err
}
