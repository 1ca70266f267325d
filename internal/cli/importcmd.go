package cli

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/postbrief/internal/config"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Import accounts from an OPML export of mirror feed subscriptions",
	Long: "import reads an OPML file exported from a feed reader, takes the account handle from every " +
		"mirror-style feed URL (https://<mirror>/<account>/rss), and appends new handles to accounts in config.yaml.",
	Args: cobra.ExactArgs(1),
	RunE: importAction,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "show what would be added without modifying config")
	rootCmd.AddCommand(importCmd)
}

type opml struct {
	Body opmlBody `xml:"body"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	XMLURL   string        `xml:"xmlUrl,attr"`
	Text     string        `xml:"text,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

func importAction(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read OPML: %w", err)
	}

	var doc opml
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse OPML: %w", err)
	}

	handles := extractAccounts(doc.Body.Outlines)
	if len(handles) == 0 {
		fmt.Fprintln(w, "No account feeds found in OPML file.")
		return nil
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	existing, err := readAccounts(configPath)
	if err != nil {
		return err
	}

	known := lo.SliceToMap(existing, func(a string) (string, bool) { return normalizeHandle(a), true })
	newAccounts := lo.Reject(handles, func(h string, _ int) bool { return known[h] })
	dupes := len(handles) - len(newAccounts)

	if len(newAccounts) == 0 {
		fmt.Fprintf(w, "All %d accounts already present, nothing to add.\n", dupes)
		return nil
	}

	if importDryRun {
		fmt.Fprintf(w, "Would add %d accounts (skipping %d duplicates):\n", len(newAccounts), dupes)
		for _, a := range newAccounts {
			fmt.Fprintf(w, "  + %s\n", a)
		}
		return nil
	}

	if err := mergeAccounts(configPath, newAccounts); err != nil {
		return fmt.Errorf("merge accounts: %w", err)
	}

	fmt.Fprintf(w, "Added %d accounts, skipped %d duplicates.\n", len(newAccounts), dupes)
	return nil
}

// extractAccounts returns the unique handles found in feed URLs of the
// form https://<mirror>/<account>/rss, in document order.
func extractAccounts(outlines []opmlOutline) []string {
	var handles []string
	for _, o := range outlines {
		if h, ok := accountFromFeedURL(o.XMLURL); ok {
			handles = append(handles, h)
		}
		// Recurse into nested outlines (folders)
		handles = append(handles, extractAccounts(o.Outlines)...)
	}
	return lo.Uniq(handles)
}

func accountFromFeedURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[1] != "rss" || parts[0] == "" {
		return "", false
	}
	return normalizeHandle(parts[0]), true
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

func readAccounts(configPath string) ([]string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var partial struct {
		Accounts []string `yaml:"accounts"`
	}
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return partial.Accounts, nil
}

// mergeAccounts reads config.yaml as a yaml.Node tree, appends to the
// top-level accounts sequence, and writes back preserving structure.
func mergeAccounts(configPath string, newAccounts []string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config YAML: %w", err)
	}

	accountsNode := findAccountsNode(&doc)
	if accountsNode == nil {
		return errors.New("could not find an accounts list in config.yaml")
	}

	for _, a := range newAccounts {
		accountsNode.Content = append(accountsNode.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Value: a,
		})
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(configPath, out, 0o644)
}

// findAccountsNode returns the sequence node at the top-level accounts key.
func findAccountsNode(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return findAccountsNode(doc.Content[0])
	}
	node := findMapValue(doc, "accounts")
	if node == nil || node.Kind != yaml.SequenceNode {
		return nil
	}
	return node
}

func findMapValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
