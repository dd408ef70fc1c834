// iqrfctl is an operational tool for an IQRF coordinator attached over USB
// CDC or SPI: send raw DPA frames, drive LEDs, read temperatures, run
// discovery.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anthropics/purple-iqrf/pkg/channel"
	"github.com/anthropics/purple-iqrf/pkg/channel/cdc"
	"github.com/anthropics/purple-iqrf/pkg/channel/spi"
	"github.com/anthropics/purple-iqrf/pkg/dpa"
	"github.com/anthropics/purple-iqrf/pkg/engine"
	"github.com/anthropics/purple-iqrf/pkg/periph"
)

// Version information (set by ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var log = logrus.New()

func main() {
	root := &cobra.Command{
		Use:   "iqrfctl",
		Short: "IQRF DPA command-line tool",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if viper.GetBool("verbose") {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("transport", "cdc", "transport to the coordinator: cdc or spi")
	flags.String("device", "/dev/spidev0.0", "spidev device path (spi transport)")
	flags.String("rf-mode", "std", "RF mode: std or lp")
	flags.Int32("timeout", -1, "transaction timeout in ms, -1 for default")
	flags.BoolP("verbose", "v", false, "debug logging")

	viper.SetEnvPrefix("IQRFCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		log.Fatal(err)
	}

	root.AddCommand(rawCmd(), ledCmd(), tempCmd(), discoveryCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openHandler() (*engine.Handler, func(), error) {
	var (
		ch     channel.Channel
		closer func()
	)

	switch viper.GetString("transport") {
	case "cdc":
		c, err := cdc.Open(log)
		if err != nil {
			return nil, nil, err
		}
		ch, closer = c, func() { c.Close() }
	case "spi":
		c, err := spi.Open(viper.GetString("device"), log)
		if err != nil {
			return nil, nil, err
		}
		ch, closer = c, func() { c.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", viper.GetString("transport"))
	}

	h, err := engine.NewHandler(ch, log)
	if err != nil {
		closer()
		return nil, nil, err
	}
	if viper.GetString("rf-mode") == "lp" {
		h.SetRfMode(engine.RfModeLp)
	}

	return h, func() { h.Close(); closer() }, nil
}

func run(request *dpa.Message) (*engine.Result, error) {
	h, closer, err := openHandler()
	if err != nil {
		return nil, err
	}
	defer closer()

	txn, err := h.Submit(request, viper.GetInt32("timeout"), dpa.ErrOK)
	if err != nil {
		return nil, err
	}
	result := txn.Get()
	if result.ErrorCode() != dpa.ErrOK {
		return result, fmt.Errorf("transaction failed: %s", result.ErrorString())
	}
	return result, nil
}

func rawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "raw <hex-frame>",
		Short: "Send a raw DPA frame and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hex.DecodeString(strings.ReplaceAll(args[0], ".", ""))
			if err != nil {
				return err
			}
			request, err := dpa.Parse(data)
			if err != nil {
				return err
			}

			result, err := run(request)
			if err != nil {
				return err
			}
			if response := result.Response(); response != nil {
				fmt.Printf("% x\n", response.Bytes())
			}
			return nil
		},
	}
}

func ledCmd() *cobra.Command {
	var nadr uint16
	var green bool

	cmd := &cobra.Command{
		Use:       "led {on|off|pulse}",
		Short:     "Drive a node LED",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off", "pulse"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var op periph.LedCmd
			switch args[0] {
			case "on":
				op = periph.LedSetOn
			case "off":
				op = periph.LedSetOff
			default:
				op = periph.LedPulse
			}

			var led *periph.Led
			if green {
				led = periph.NewLedG(nadr, op)
			} else {
				led = periph.NewLedR(nadr, op)
			}
			request, err := led.Request()
			if err != nil {
				return err
			}
			_, err = run(request)
			return err
		},
	}
	cmd.Flags().Uint16Var(&nadr, "nadr", 0, "node address, 0 for the coordinator")
	cmd.Flags().BoolVar(&green, "green", false, "green LED instead of red")
	return cmd
}

func tempCmd() *cobra.Command {
	var nadr uint16

	cmd := &cobra.Command{
		Use:   "temp",
		Short: "Read the node thermometer",
		RunE: func(cmd *cobra.Command, args []string) error {
			th := periph.NewThermometer(nadr)
			request, err := th.Request()
			if err != nil {
				return err
			}
			result, err := run(request)
			if err != nil {
				return err
			}
			if err := th.ParseResponse(result.Response()); err != nil {
				return err
			}
			fmt.Printf("%.1f C\n", th.FloatTemperature)
			return nil
		},
	}
	cmd.Flags().Uint16Var(&nadr, "nadr", 0, "node address")
	return cmd
}

func discoveryCmd() *cobra.Command {
	var txPower, maxAddr uint8

	cmd := &cobra.Command{
		Use:   "discovery",
		Short: "Run mesh discovery on the coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			disc := periph.NewDiscovery(txPower, maxAddr)
			request, err := disc.Request()
			if err != nil {
				return err
			}
			result, err := run(request)
			if err != nil {
				return err
			}
			if err := disc.ParseResponse(result.Response()); err != nil {
				return err
			}
			fmt.Printf("discovered %d nodes\n", disc.DiscoveredNodes)
			return nil
		},
	}
	cmd.Flags().Uint8Var(&txPower, "tx-power", 7, "discovery TX power 0..7")
	cmd.Flags().Uint8Var(&maxAddr, "max-addr", 0, "highest address to discover, 0 for all")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("iqrfctl %s (built %s)\n", Version, BuildTime)
		},
	}
}
