package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ddpfleet/ddpfleet/pkg/engine"
	"github.com/ddpfleet/ddpfleet/pkg/inventory"
	"github.com/ddpfleet/ddpfleet/pkg/telemetry"
)

func newInventoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Inspect and encrypt the engine inventory",
	}

	cmd.AddCommand(newInventoryEncryptCommand(a))
	cmd.AddCommand(newInventoryListCommand(a))

	return cmd
}

// loadFleet loads the inventory named by --config.
func (a *app) loadFleet() (*inventory.Fleet, *options, error) {
	opts, err := a.load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: opts.LogLevel, Console: true})
	if err != nil {
		return nil, nil, engine.NewConfigError("cannot set up logging", err)
	}
	defer logger.Close()

	cipher, err := inventory.ResolveCipher(opts.KeyFile)
	if err != nil {
		return nil, nil, engine.Classify(err, "cannot resolve inventory key")
	}
	fleet, err := inventory.Load(opts.Config, inventory.WithCipher(cipher), inventory.WithLogger(logger))
	if err != nil {
		return nil, nil, engine.Classify(err, "cannot load inventory")
	}
	return fleet, opts, nil
}

func newInventoryEncryptCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt plaintext credentials in the inventory",
		Long: `Encrypt every record that still holds plaintext credentials and rewrite
the inventory file. Every command does this on load; this command does only
that. The key comes from --key-file or ` + inventory.KeyEnv + `; without either,
a key compiled into ddpctl is used, which only keeps plaintext out of the
file and does not protect it from anyone holding the binary.`,
		Example: `  DDP_INVENTORY_KEY=s3cret ddpctl --config engines.yaml inventory encrypt`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fleet, _, err := a.loadFleet()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d engine(s), %d record(s) encrypted\n", fleet.Path(), fleet.Len(), fleet.Migrated())
			return nil
		},
	}

	return cmd
}

func newInventoryListCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the engines of the inventory without credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fleet, opts, err := a.loadFleet()
			if err != nil {
				return err
			}
			records := fleet.Engines()
			w := cmd.OutOrStdout()
			if opts.JSON {
				rows := make([]inventoryRow, 0, len(records))
				for _, r := range records {
					rows = append(rows, inventoryRow{
						Hostname:   r.Hostname,
						Identifier: r.Identifier,
						IPAddress:  r.IPAddress,
						Class:      r.Class,
						UseHTTPS:   r.UseHTTPS,
						Default:    r.IsDefault,
					})
				}
				return writeJSON(w, rows)
			}
			return writeTable(w, []string{"HOSTNAME", "IDENTIFIER", "ADDRESS", "CLASS", "HTTPS", "DEFAULT"}, len(records), func(i int) []string {
				r := records[i]
				return []string{r.Hostname, orDash(r.Identifier), r.IPAddress, orDash(r.Class), strconv.FormatBool(r.UseHTTPS), strconv.FormatBool(r.IsDefault)}
			})
		},
	}

	return cmd
}

// inventoryRow is an engine record without its credentials.
type inventoryRow struct {
	Hostname   string `json:"hostname"`
	Identifier string `json:"ddp_identifier,omitempty"`
	IPAddress  string `json:"ip_address"`
	Class      string `json:"class,omitempty"`
	UseHTTPS   bool   `json:"use_https"`
	Default    bool   `json:"default"`
}
