package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mnemo-labs/mnemod/internal/profile"
	"github.com/mnemo-labs/mnemod/internal/version"
	"github.com/mnemo-labs/mnemod/server/service/distill"
	"github.com/mnemo-labs/mnemod/store"
	"github.com/mnemo-labs/mnemod/store/db"
)

// distillCmd ingests a session event stream without a running server: events
// come in as JSON lines, surviving memories go straight to the store. Their
// vectors are filled in by the backfill runner on the next server run.
var distillCmd = &cobra.Command{
	Use:   "distill [file]",
	Short: "Distill a session event stream (JSON lines) into stored memories.",
	Args:  cobra.MaximumNArgs(1),
	Run:   runDistill,
}

func init() {
	distillCmd.Flags().Int("min-importance", distill.DefaultMinImportance, "capture threshold on the 0-10 importance scale")
	distillCmd.Flags().StringSlice("skip-tools", nil, "tool names that are never captured")
	rootCmd.AddCommand(distillCmd)
}

func runDistill(cmd *cobra.Command, args []string) {
	input := io.Reader(os.Stdin)
	if len(args) == 1 {
		file, err := os.Open(args[0])
		if err != nil {
			exitErr("open event file", err)
		}
		defer file.Close()
		input = file
	}

	events, err := readEvents(input)
	if err != nil {
		exitErr("read events", err)
	}

	config := distill.DefaultConfig()
	config.MinImportance, _ = cmd.Flags().GetInt("min-importance")
	config.SkipTools, _ = cmd.Flags().GetStringSlice("skip-tools")
	memories := distill.New(config).DistillSession(events)

	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		exitErr("validate configuration", err)
	}

	ctx := cmd.Context()
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		exitErr("create db driver", err)
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	defer storeInstance.Close()
	if err := storeInstance.Migrate(ctx); err != nil {
		exitErr("migrate database", err)
	}

	for _, memory := range memories {
		if _, err := storeInstance.CreateMemory(ctx, memory); err != nil {
			exitErr(fmt.Sprintf("store memory %q", memory.Title), err)
		}
	}

	fmt.Printf(`{"events":%d,"captured":%d}`+"\n", len(events), len(memories))
}

// readEvents parses one RawEvent per non-blank line.
func readEvents(r io.Reader) ([]*distill.RawEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []*distill.RawEvent
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		event := &distill.RawEvent{}
		if err := json.Unmarshal([]byte(text), event); err != nil {
			return nil, errors.Wrapf(err, "bad event on line %d", line)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read event stream")
	}
	return events, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
