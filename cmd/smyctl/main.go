package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dougsko/smyd/pkg/client"
	"github.com/dougsko/smyd/pkg/playlist"
)

var serverURL string

func apiClient() *client.APIClient {
	return client.NewAPIClient(serverURL)
}

var rootCmd = &cobra.Command{
	Use:   "smyctl",
	Short: "Control a running smyd signal generator daemon",
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and instrument status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := apiClient().Status()
		if err != nil {
			return err
		}

		fmt.Printf("Daemon:    %s (up %s)\n", st.Version, st.Uptime)
		if st.Connected {
			fmt.Printf("Connected: yes (%s)\n", st.Identity.Raw)
		} else {
			fmt.Printf("Connected: no\n")
		}
		fmt.Printf("Mode:      %s\n", st.Mode)
		fmt.Printf("Output:    %v\n", onOff(st.OutputOn))
		if st.Hopping.Running {
			fmt.Printf("Hopping:   entry %d/%d (%s), dwell %d ms, %d cycles\n",
				st.Hopping.Index+1, st.Hopping.Entries, st.Hopping.Entry,
				st.Hopping.DwellMs, st.Hopping.Cycles)
		} else {
			fmt.Printf("Hopping:   idle\n")
		}
		if st.Hopping.LastError != "" {
			fmt.Printf("Last err:  %s\n", st.Hopping.LastError)
		}
		return nil
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open the instrument link",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := apiClient().Connect()
		if err != nil {
			return err
		}
		fmt.Printf("Connected: %s\n", id.Raw)
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Close the instrument link",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().Disconnect(); err != nil {
			return err
		}
		fmt.Println("Disconnected")
		return nil
	},
}

var freqCmd = &cobra.Command{
	Use:   "freq <MHz>",
	Short: "Set the output frequency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mhz, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid frequency %q: %w", args[0], err)
		}
		hz := int64(mhz * 1e6)
		if err := apiClient().SetFrequency(hz); err != nil {
			return err
		}
		fmt.Printf("Frequency set to %.6f MHz\n", mhz)
		return nil
	},
}

var levelCmd = &cobra.Command{
	Use:   "level <dBm>",
	Short: "Set the output level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbm, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid level %q: %w", args[0], err)
		}
		if err := apiClient().SetLevel(dbm); err != nil {
			return err
		}
		fmt.Printf("Level set to %g dBm\n", dbm)
		return nil
	},
}

var outputCmd = &cobra.Command{
	Use:   "output on|off",
	Short: "Enable or disable the RF output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		if err := apiClient().SetOutput(enabled); err != nil {
			return err
		}
		fmt.Printf("RF output %s\n", onOff(enabled))
		return nil
	},
}

var modCmd = &cobra.Command{
	Use:   "mod fm <deviationHz> | mod am",
	Short: "Select FM (with deviation) or AM modulation",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "fm":
			if len(args) < 2 {
				return fmt.Errorf("fm requires a deviation in Hz")
			}
			dev, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid deviation %q: %w", args[1], err)
			}
			if err := apiClient().SetModulation("fm", dev); err != nil {
				return err
			}
			fmt.Printf("FM modulation, deviation %d Hz\n", dev)
		case "am":
			if err := apiClient().SetModulation("am", 0); err != nil {
				return err
			}
			fmt.Println("AM modulation")
		default:
			return fmt.Errorf("expected fm or am, got %q", args[0])
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the instrument to factory defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().Reset(); err != nil {
			return err
		}
		fmt.Println("Instrument reset")
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Poll the instrument front-panel state",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := apiClient().Snapshot()
		if err != nil {
			return err
		}
		fmt.Printf("RF:    %s\n", st.RF)
		fmt.Printf("Level: %s\n", st.Level)
		fmt.Printf("FM:    %s\n", st.FM)
		fmt.Printf("AF:    %s\n", st.AF)
		fmt.Printf("At:    %s\n", st.PolledAt.Format("15:04:05"))
		return nil
	},
}

var sweepFlags struct {
	start      float64
	stop       float64
	step       float64
	level      float64
	altLevel   float64
	alternate  bool
	toggleN    int
	bandwidth  string
	pingPong   bool
	replace    bool
	outputFile string
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Generate a sweep into the daemon's live playlist",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := playlist.SweepSpec{
			StartMHz:         sweepFlags.start,
			StopMHz:          sweepFlags.stop,
			StepMHz:          sweepFlags.step,
			BaseLevelDbm:     sweepFlags.level,
			AlternateEnabled: sweepFlags.alternate,
			AltLevelDbm:      sweepFlags.altLevel,
			ToggleEveryN:     sweepFlags.toggleN,
			Bandwidth:        playlist.Bandwidth(sweepFlags.bandwidth),
			PingPong:         sweepFlags.pingPong,
			Replace:          sweepFlags.replace,
		}

		pl, err := apiClient().GenerateSweep(spec)
		if err != nil {
			return err
		}

		if sweepFlags.outputFile != "" {
			if err := savePlaylist(sweepFlags.outputFile, pl); err != nil {
				return err
			}
			fmt.Printf("Saved %d entries to %s\n", len(pl), sweepFlags.outputFile)
			return nil
		}

		for _, e := range pl {
			fmt.Printf("%-20s %12.6f MHz %8.1f dBm  %s\n", e.Name, e.FrequencyMHz, e.LevelDbm, e.Bandwidth)
		}
		return nil
	},
}

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Inspect or replace the daemon's live playlist",
}

var playlistShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the live playlist",
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := apiClient().GetPlaylist()
		if err != nil {
			return err
		}
		if len(pl) == 0 {
			fmt.Println("(empty)")
			return nil
		}
		for i, e := range pl {
			fmt.Printf("%3d  %-20s %12.6f MHz %8.1f dBm  %s\n",
				i, e.Name, e.FrequencyMHz, e.LevelDbm, e.Bandwidth)
		}
		return nil
	},
}

var playlistFile string

var playlistPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Replace the live playlist from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := loadPlaylist(playlistFile)
		if err != nil {
			return err
		}
		if err := apiClient().SetPlaylist(pl); err != nil {
			return err
		}
		fmt.Printf("Pushed %d entries\n", len(pl))
		return nil
	},
}

var playlistPullFile string

var playlistPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Save the live playlist to a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := apiClient().GetPlaylist()
		if err != nil {
			return err
		}
		if err := savePlaylist(playlistPullFile, pl); err != nil {
			return err
		}
		fmt.Printf("Saved %d entries to %s\n", len(pl), playlistPullFile)
		return nil
	},
}

var hopCmd = &cobra.Command{
	Use:   "hop",
	Short: "Control frequency hopping sessions",
}

var hopStartFlags struct {
	playlistFile string
	dwellMs      int
}

var hopStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start hopping over a playlist file, or the live playlist if none given",
	RunE: func(cmd *cobra.Command, args []string) error {
		var pl playlist.Playlist
		if hopStartFlags.playlistFile != "" {
			var err error
			if pl, err = loadPlaylist(hopStartFlags.playlistFile); err != nil {
				return err
			}
		}
		if err := apiClient().StartHopping(pl, hopStartFlags.dwellMs); err != nil {
			return err
		}
		fmt.Println("Hopping started")
		return nil
	},
}

var hopStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active hopping session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().StopHopping(); err != nil {
			return err
		}
		fmt.Println("Hopping stopped")
		return nil
	},
}

var eventsFlags struct {
	limit     int
	eventType string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent session events",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := apiClient().Events(eventsFlags.limit, eventsFlags.eventType)
		if err != nil {
			return err
		}
		for _, ev := range events {
			line := fmt.Sprintf("%s  %-8s", ev.Timestamp.Format("15:04:05"), ev.Type)
			if ev.EntryName != "" {
				line += fmt.Sprintf("  [%d] %s %.6f MHz %g dBm",
					ev.HopIndex, ev.EntryName, float64(ev.FrequencyHz)/1e6, ev.LevelDbm)
			}
			if ev.Detail != "" {
				line += "  " + ev.Detail
			}
			fmt.Println(line)
		}
		return nil
	},
}

// loadPlaylist reads a playlist from a JSON file. Persistence lives on the
// client side; the daemon only ever sees the in-memory playlist.
func loadPlaylist(path string) (playlist.Playlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}
	var pl playlist.Playlist
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}
	if err := pl.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playlist: %w", err)
	}
	return pl, nil
}

func savePlaylist(path string, pl playlist.Playlist) error {
	data, err := json.MarshalIndent(pl, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode playlist: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write playlist: %w", err)
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s",
		"http://localhost:8080", "smyd daemon base URL")

	sweepCmd.Flags().Float64Var(&sweepFlags.start, "start", 0, "Start frequency in MHz")
	sweepCmd.Flags().Float64Var(&sweepFlags.stop, "stop", 0, "Stop frequency in MHz")
	sweepCmd.Flags().Float64Var(&sweepFlags.step, "step", 0, "Step size in MHz")
	sweepCmd.Flags().Float64Var(&sweepFlags.level, "level", -20, "Base level in dBm")
	sweepCmd.Flags().BoolVar(&sweepFlags.alternate, "alternate", false, "Alternate between base and alt level")
	sweepCmd.Flags().Float64Var(&sweepFlags.altLevel, "alt-level", -40, "Alternate level in dBm")
	sweepCmd.Flags().IntVar(&sweepFlags.toggleN, "toggle-every", 1, "Toggle levels every N points")
	sweepCmd.Flags().StringVar(&sweepFlags.bandwidth, "bandwidth", string(playlist.DefaultBandwidth), "Bandwidth profile")
	sweepCmd.Flags().BoolVar(&sweepFlags.pingPong, "ping-pong", false, "Append the reversed interior points")
	sweepCmd.Flags().BoolVar(&sweepFlags.replace, "replace", false, "Replace the live playlist instead of appending")
	sweepCmd.Flags().StringVarP(&sweepFlags.outputFile, "out", "o", "", "Write the playlist to a JSON file")
	sweepCmd.MarkFlagRequired("start")
	sweepCmd.MarkFlagRequired("stop")
	sweepCmd.MarkFlagRequired("step")

	playlistPushCmd.Flags().StringVarP(&playlistFile, "file", "f", "", "Playlist JSON file")
	playlistPushCmd.MarkFlagRequired("file")
	playlistPullCmd.Flags().StringVarP(&playlistPullFile, "out", "o", "", "Output JSON file")
	playlistPullCmd.MarkFlagRequired("out")
	playlistCmd.AddCommand(playlistShowCmd, playlistPushCmd, playlistPullCmd)

	hopStartCmd.Flags().StringVarP(&hopStartFlags.playlistFile, "playlist", "p", "", "Playlist JSON file (default: daemon's live playlist)")
	hopStartCmd.Flags().IntVar(&hopStartFlags.dwellMs, "dwell", 0, "Dwell per entry in ms (0 = daemon default)")
	hopCmd.AddCommand(hopStartCmd, hopStopCmd)

	eventsCmd.Flags().IntVarP(&eventsFlags.limit, "limit", "n", 50, "Maximum events to show")
	eventsCmd.Flags().StringVarP(&eventsFlags.eventType, "type", "t", "", "Filter by event type")

	rootCmd.AddCommand(statusCmd, connectCmd, disconnectCmd, freqCmd, levelCmd,
		outputCmd, modCmd, resetCmd, stateCmd, sweepCmd, playlistCmd, hopCmd, eventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
