package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"csb/internal/config"
)

var (
	configFormat   string
	configShowDiff bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage csb configuration",
	Long:  "View csb configuration stored in .csb/config.json",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults, the config file and CSB_*
environment overrides are applied.

Examples:
  csb config show              # Pretty-print current config
  csb config show --format json
  csb config show --diff       # Only show non-default values`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Args:  cobra.NoArgs,
	Run:   runConfigEnv,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "human", "Output format (json, human)")
	configShowCmd.Flags().BoolVar(&configShowDiff, "diff", false, "Only show non-default values")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	Root   string                 `json:"root"`
	Valid  bool                   `json:"valid"`
	Error  string                 `json:"error,omitempty"`
	Config map[string]interface{} `json:"config"`
}

func toMap(cfg *config.Config) (map[string]interface{}, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	root := projectRoot()
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	current, err := toMap(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if configShowDiff {
		defaults, err := toMap(config.DefaultConfig())
		if err != nil {
			return fmt.Errorf("failed to encode defaults: %w", err)
		}
		current = computeDiff(current, defaults)
	}

	resp := ConfigShowResponse{Root: root, Valid: true, Config: current}
	if verr := cfg.Validate(); verr != nil {
		resp.Valid = false
		resp.Error = verr.Error()
	}

	if OutputFormat(configFormat) == FormatJSON {
		output, err := formatJSON(resp)
		if err != nil {
			return err
		}
		fmt.Println(output)
		return nil
	}

	fmt.Println("csb configuration")
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("Root: %s\n", root)
	if !resp.Valid {
		fmt.Printf("INVALID: %s\n", resp.Error)
	}
	fmt.Println()
	lines := flatten(current, "")
	if len(lines) == 0 {
		fmt.Println("  (no modifications - using all defaults)")
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

// flatten renders a nested map as sorted "a.b: value" lines.
func flatten(m map[string]interface{}, prefix string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		if nested, ok := m[k].(map[string]interface{}); ok {
			out = append(out, flatten(nested, prefix+k+".")...)
			continue
		}
		out = append(out, fmt.Sprintf("%s%s: %v", prefix, k, m[k]))
	}
	return out
}

func computeDiff(current, defaults map[string]interface{}) map[string]interface{} {
	diff := make(map[string]interface{})
	for key, currentVal := range current {
		defaultVal, exists := defaults[key]
		if !exists {
			diff[key] = currentVal
			continue
		}

		currentMap, currentIsMap := currentVal.(map[string]interface{})
		defaultMap, defaultIsMap := defaultVal.(map[string]interface{})
		if currentIsMap && defaultIsMap {
			if nested := computeDiff(currentMap, defaultMap); len(nested) > 0 {
				diff[key] = nested
			}
		} else if fmt.Sprintf("%v", currentVal) != fmt.Sprintf("%v", defaultVal) {
			diff[key] = currentVal
		}
	}
	return diff
}

type envVarInfo struct {
	name    string
	desc    string
	varType string
}

func runConfigEnv(cmd *cobra.Command, args []string) {
	fmt.Println("Supported csb Environment Variables")
	fmt.Println(strings.Repeat("─", 50))
	fmt.Println()

	categories := map[string][]envVarInfo{
		"Scheduler": {
			{"CSB_SCHEDULER_STRATEGY", "Scheduling strategy (greedy, conservative)", "string"},
			{"CSB_SCHEDULER_STRICT", "Strict dependency checking", "bool"},
			{"CSB_SCHEDULER_WARNINGS", "Report warnings", "bool"},
			{"CSB_SCHEDULER_MAXERRORS", "Stop after this many errors", "int"},
			{"CSB_SCHEDULER_ROUNDBUDGET", "Cost budget of one greedy round", "float"},
			{"CSB_SCHEDULER_FACTOR", "Divisor turning file size into cost", "float"},
		},
		"Cache": {
			{"CSB_CACHE_ENABLED", "Persist build snapshots", "bool"},
			{"CSB_CACHE_PATH", "Snapshot database path", "string"},
			{"CSB_CACHE_COMPRESSION", "Artifact compression (zstd, none)", "string"},
		},
		"Watch": {
			{"CSB_WATCH_DEBOUNCEMS", "Quiet period before a rebuild", "int"},
		},
		"Logging": {
			{"CSB_LOGGING_LEVEL", "Log level (debug, info, warn, error)", "string"},
			{"CSB_LOGGING_FORMAT", "Log format (human, json)", "string"},
			{"CSB_LOGGING_FILE", "Log file path", "string"},
		},
	}

	for _, cat := range []string{"Scheduler", "Cache", "Watch", "Logging"} {
		fmt.Printf("%s:\n", cat)
		for _, v := range categories[cat] {
			fmt.Printf("  %-30s %s (%s)\n", v.name, v.desc, v.varType)
		}
		fmt.Println()
	}

	fmt.Println("Example usage:")
	fmt.Println("  CSB_SCHEDULER_STRATEGY=conservative csb build")
	fmt.Println("  CSB_LOGGING_LEVEL=debug csb watch")
}
