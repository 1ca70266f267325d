package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postbrief/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func initAction(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(w, configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if !wrote {
		fmt.Fprintf(w, "Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Fprintf(w, "Initialized %s. Edit accounts and backend, then run `postbrief doctor`.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(w io.Writer, path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# postbrief configuration

accounts:
  - sama
  - elonmusk

# posts per account
limit: 10

# library | subprocess | mirror | feed
backend: mirror

library:
  host: https://public.api.bsky.app
  timeout: 30s

subprocess:
  # {account} and {limit} are substituted; the scraper must print JSONL
  command: ["snscrape", "--jsonl", "--max-results", "{limit}", "twitter-user", "{account}"]
  timeout: 2m
  permalink: "https://x.com/{account}/status/{id}"

mirror:
  endpoints:
    - https://nitter.net
    - https://xcancel.com
  path: /{account}/rss
  timeout: 10s
  accept_empty: false
  permalink: "https://x.com/{account}/status/{id}"

feed:
  url: ""
  label: feed
  max_items: 0

http:
  user_agent: ""
  insecure_skip_verify: false

summarize:
  # heuristic | openai | gemini
  mode: heuristic
  model: ""
  api_key_env: OPENAI_API_KEY
  temperature: 0.4
  max_tokens: 300
  timeout: 60s
  language: English

privacy:
  redact:
    enabled: true
    patterns: []

digest:
  out_dir: docs/daily
  format: markdown
  timezone: UTC
  heading: post digest
  link_text: Original post

metrics:
  textfile: ""
`
